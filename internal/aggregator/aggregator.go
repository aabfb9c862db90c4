package aggregator

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const (
	maxConsensus         = 8
	maxTakeawaysPerTheme = 5
	maxRisks             = 10
	maxRecommendations   = 6
)

// Fixed report lines
const (
	ScaffoldingRiskLine    = "Scaffolding output is present: at least one engine returned synthetic fallback findings, which must be treated as low-confidence until live connectors are configured."
	AllEnginesSucceeded    = "Reliability: all engines responded successfully."
	ValidationCallToAction = "Next step: validate the key claims against primary sources before acting on this brief."
	VerificationLogRec     = "Keep a verification log recording which primary source was checked for each claim in this brief."
	RedTeamRec             = "Run a red-team review that challenges the strongest conclusions before they inform decisions."
	ConsensusFollowUpRec   = "Prioritise follow-up research on the consensus findings and confirm them with primary data."
)

// Builder merges per-engine results into a Synthesis
type Builder struct {
	// Clock supplies GeneratedAt; time.Now when nil
	Clock func() time.Time
	// IncludeFallbackDisagreements reports single-engine statements from
	// engines in fallback mode as disagreements.
	IncludeFallbackDisagreements bool
}

type statementGroup struct {
	representative string
	engineIDs      []string
	engineNames    []string
	fallbackOnly   bool
}

// Build produces the merged report. It must only be called once every
// engine has produced its result.
func (b Builder) Build(question string, subquestions []string, results []models.EngineResult) models.Synthesis {
	clock := b.Clock
	if clock == nil {
		clock = time.Now
	}

	groups := groupStatements(results)
	consensus := make([]string, 0, maxConsensus)
	disagreements := make([]string, 0)
	for _, g := range groups {
		switch {
		case len(g.engineIDs) >= 2:
			if len(consensus) < maxConsensus {
				consensus = append(consensus, fmt.Sprintf("%s (corroborated by %s).",
					trimTerminal(g.representative), strings.Join(g.engineNames, ", ")))
			}
		case g.fallbackOnly && !b.IncludeFallbackDisagreements:
			// uncorroborated scaffolding, already covered by the fallback risk lines
		default:
			disagreements = append(disagreements, fmt.Sprintf("%s (only reported by %s; treat as unverified).",
				trimTerminal(g.representative), g.engineNames[0]))
		}
	}

	var fallbackNames []string
	totalFindings := 0
	for _, r := range results {
		totalFindings += len(r.Findings)
		if r.UsedFallback {
			fallbackNames = append(fallbackNames, r.EngineName)
		}
	}

	engineResults := make([]models.EngineResult, len(results))
	copy(engineResults, results)

	return models.Synthesis{
		Question:         question,
		Subquestions:     append([]string{}, subquestions...),
		ExecutiveSummary: executiveSummary(question, subquestions, results, consensus, totalFindings, len(fallbackNames)),
		Consensus:        consensus,
		Disagreements:    disagreements,
		Clusters:         clusters(results),
		ToolComparison:   toolComparison(results),
		Risks:            risks(results, disagreements, len(fallbackNames) > 0),
		Recommendations:  recommendations(question, consensus, fallbackNames),
		Engines:          engineResults,
		GeneratedAt:      clock().UTC(),
	}
}

// CanonicalKey lower-cases s, drops everything outside [a-z0-9 ] and
// collapses whitespace.
func CanonicalKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func groupStatements(results []models.EngineResult) []*statementGroup {
	var order []*statementGroup
	byKey := make(map[string]*statementGroup)
	for _, r := range results {
		for _, f := range r.Findings {
			key := CanonicalKey(f.Statement)
			// statements with no [a-z0-9] content cannot be compared
			// across engines and stay out of consensus and disagreements
			if key == "" {
				continue
			}
			g, ok := byKey[key]
			if !ok {
				g = &statementGroup{representative: strings.TrimSpace(f.Statement), fallbackOnly: true}
				byKey[key] = g
				order = append(order, g)
			}
			if !contains(g.engineIDs, r.EngineID) {
				g.engineIDs = append(g.engineIDs, r.EngineID)
				g.engineNames = append(g.engineNames, r.EngineName)
			}
			if !r.UsedFallback {
				g.fallbackOnly = false
			}
		}
	}
	return order
}

func clusters(results []models.EngineResult) []models.ThemeCluster {
	out := make([]models.ThemeCluster, 0)
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)
	for _, r := range results {
		for _, f := range r.Findings {
			i, ok := index[f.Theme]
			if !ok {
				i = len(out)
				index[f.Theme] = i
				out = append(out, models.ThemeCluster{Theme: f.Theme, Takeaways: []string{}})
				seen[f.Theme] = make(map[string]bool)
			}
			takeaway := fmt.Sprintf("%s: %s", r.EngineName, f.Statement)
			if seen[f.Theme][takeaway] || len(out[i].Takeaways) >= maxTakeawaysPerTheme {
				continue
			}
			seen[f.Theme][takeaway] = true
			out[i].Takeaways = append(out[i].Takeaways, takeaway)
		}
	}
	return out
}

func risks(results []models.EngineResult, disagreements []string, anyFallback bool) []string {
	var lines []string
	for _, r := range results {
		for _, f := range r.Findings {
			if f.Confidence != models.ConfidenceLow && f.EvidenceStatus == models.EvidenceConfirmed && !r.UsedFallback {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s flagged \"%s\" as %s with %s confidence.",
				r.EngineName, f.Statement, f.EvidenceStatus, f.Confidence))
		}
	}
	lines = append(lines, disagreements...)
	lines = dedupe(lines, maxRisks)

	out := make([]string, 0, len(lines)+1)
	if anyFallback {
		out = append(out, ScaffoldingRiskLine)
	}
	return append(out, lines...)
}

func toolComparison(results []models.EngineResult) []models.ToolComparison {
	out := make([]models.ToolComparison, 0, len(results))
	for _, r := range results {
		static, _ := engines.Lookup(r.EngineID)
		cautions := static.Cautions
		if r.UsedFallback {
			cautions = joinSentences(cautions, "Currently in fallback mode: output is synthetic scaffolding, not live research.")
		}
		if len(r.Warnings) > 0 && r.Warnings[0] != models.FallbackDisclosure {
			cautions = joinSentences(cautions, "Latest warning: "+r.Warnings[0])
		}
		out = append(out, models.ToolComparison{
			EngineID:   r.EngineID,
			EngineName: r.EngineName,
			Strengths:  static.Strengths,
			BestFor:    static.BestFor,
			Cautions:   cautions,
		})
	}
	return out
}

func executiveSummary(question string, subquestions []string, results []models.EngineResult, consensus []string, totalFindings, fallbackCount int) []string {
	lead := fmt.Sprintf("Engines produced preliminary scaffolding for \"%s\"; verified findings are pending live connectors.", question)
	if len(consensus) > 0 {
		lead = consensus[0]
	}
	coverage := fmt.Sprintf("Coverage: %d engine(s) contributed %d finding(s) across %d sub-question(s).",
		len(results), totalFindings, len(subquestions))
	reliability := AllEnginesSucceeded
	if fallbackCount > 0 {
		reliability = fmt.Sprintf("Reliability caveat: %d of %d engine(s) used fallback output; treat their findings as provisional.",
			fallbackCount, len(results))
	}
	return []string{lead, coverage, reliability, ValidationCallToAction}
}

func recommendations(question string, consensus []string, fallbackNames []string) []string {
	recs := make([]string, 0, maxRecommendations)
	if len(consensus) > 0 {
		recs = append(recs, ConsensusFollowUpRec)
	} else {
		recs = append(recs, fmt.Sprintf("Commission baseline research on \"%s\" to establish verified findings.", question))
	}
	if len(fallbackNames) > 0 {
		recs = append(recs, fmt.Sprintf("Configure credentials for %s to replace fallback scaffolding with live findings.",
			strings.Join(fallbackNames, ", ")))
	}
	recs = append(recs, VerificationLogRec, RedTeamRec)
	return dedupe(recs, maxRecommendations)
}

func dedupe(lines []string, limit int) []string {
	out := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}

func trimTerminal(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".!?;:, ")
}

func joinSentences(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
