package models

import "time"

// Confidence levels reported for findings and engine results
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is one of the known confidence levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// Evidence statuses
type EvidenceStatus string

const (
	EvidenceConfirmed   EvidenceStatus = "confirmed"
	EvidenceUncertain   EvidenceStatus = "uncertain"
	EvidenceConflicting EvidenceStatus = "conflicting"
)

// Valid reports whether s is one of the known evidence statuses.
func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidenceConfirmed, EvidenceUncertain, EvidenceConflicting:
		return true
	}
	return false
}

const (
	// MaxReferencesPerFinding caps the references kept on a single finding
	MaxReferencesPerFinding = 5
	// DefaultTheme is used when neither the finding nor the plan offers one
	DefaultTheme = "General Insights"
	// FallbackDisclosure is attached to every locally synthesized engine result
	FallbackDisclosure = "Synthetic placeholder response: no live engine data was used. Treat all findings as scaffolding."
)

// Reference is a supporting source attached to a finding
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Finding is one atomic insight reported by an engine
type Finding struct {
	Theme          string         `json:"theme"`
	Statement      string         `json:"statement"`
	Rationale      string         `json:"rationale"`
	Confidence     Confidence     `json:"confidence"`
	EvidenceStatus EvidenceStatus `json:"evidenceStatus"`
	References     []Reference    `json:"references"`
}

// EngineResult is the canonical per-engine output consumed by the aggregator.
// UsedFallback implies OverallConfidence == ConfidenceLow.
type EngineResult struct {
	EngineID          string     `json:"engineId"`
	EngineName        string     `json:"engineName"`
	Summary           string     `json:"summary"`
	Findings          []Finding  `json:"findings"`
	OverallConfidence Confidence `json:"overallConfidence"`
	UsedFallback      bool       `json:"usedFallback"`
	Warnings          []string   `json:"warnings,omitempty"`
	Endpoint          string     `json:"endpoint,omitempty"`
}

// ThemeCluster groups takeaways that share a literal theme
type ThemeCluster struct {
	Theme     string   `json:"theme"`
	Takeaways []string `json:"takeaways"`
}

// ToolComparison describes one engine's profile and its caveats for this run
type ToolComparison struct {
	EngineID   string `json:"engineId"`
	EngineName string `json:"engineName"`
	Strengths  string `json:"strengths"`
	BestFor    string `json:"bestFor"`
	Cautions   string `json:"cautions"`
}

// Synthesis is the merged master brief returned to the caller
type Synthesis struct {
	Question         string           `json:"question"`
	Subquestions     []string         `json:"subquestions"`
	ExecutiveSummary []string         `json:"executiveSummary"`
	Consensus        []string         `json:"consensus"`
	Disagreements    []string         `json:"disagreements"`
	Clusters         []ThemeCluster   `json:"clusters"`
	ToolComparison   []ToolComparison `json:"toolComparison"`
	Risks            []string         `json:"risks"`
	Recommendations  []string         `json:"recommendations"`
	Engines          []EngineResult   `json:"engines"`
	GeneratedAt      time.Time        `json:"generatedAt"`
}

// FallbackEngines returns the display names of engines that used fallback, in order.
func (s *Synthesis) FallbackEngines() []string {
	var names []string
	for _, r := range s.Engines {
		if r.UsedFallback {
			names = append(names, r.EngineName)
		}
	}
	return names
}
