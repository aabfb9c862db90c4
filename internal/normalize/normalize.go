package normalize

import (
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const maxSummaryThemes = 3

// Normalize coerces a schema-valid payload into an EngineResult, filling
// every missing optional field with an engine-attributed default.
func Normalize(engine engines.Engine, payload *Payload, subquestions []string, endpoint string) models.EngineResult {
	defaultTheme := models.DefaultTheme
	if len(subquestions) > 0 && strings.TrimSpace(subquestions[0]) != "" {
		defaultTheme = strings.TrimSpace(subquestions[0])
	}

	findings := make([]models.Finding, 0, len(payload.Findings))
	for _, raw := range payload.Findings {
		findings = append(findings, normalizeFinding(engine, raw, defaultTheme))
	}

	summary := strings.TrimSpace(payload.Summary)
	if summary == "" {
		summary = deriveSummary(engine, findings)
	}

	overall := models.Confidence(strings.ToLower(strings.TrimSpace(payload.OverallConfidence)))
	if !overall.Valid() {
		overall = models.InferConfidence(findings)
	}

	var warnings []string
	for _, w := range payload.Warnings {
		if w = strings.TrimSpace(w); w != "" {
			warnings = append(warnings, w)
		}
	}

	return models.EngineResult{
		EngineID:          engine.ID,
		EngineName:        engine.Name,
		Summary:           summary,
		Findings:          findings,
		OverallConfidence: overall,
		UsedFallback:      false,
		Warnings:          warnings,
		Endpoint:          endpoint,
	}
}

func normalizeFinding(engine engines.Engine, raw RawFinding, defaultTheme string) models.Finding {
	theme := strings.TrimSpace(raw.Theme)
	if theme == "" {
		theme = defaultTheme
	}
	statement := strings.TrimSpace(raw.Statement)
	if statement == "" {
		statement = fmt.Sprintf("%s returned a finding without a statement.", engine.Name)
	}
	rationale := strings.TrimSpace(raw.Rationale)
	if rationale == "" {
		rationale = fmt.Sprintf("%s did not provide a rationale for this finding.", engine.Name)
	}

	confidence := models.Confidence(strings.ToLower(strings.TrimSpace(raw.Confidence)))
	if !confidence.Valid() {
		confidence = models.ConfidenceMedium
	}
	status := models.EvidenceStatus(strings.ToLower(strings.TrimSpace(raw.EvidenceStatus)))
	if !status.Valid() {
		status = models.EvidenceUncertain
	}

	return models.Finding{
		Theme:          theme,
		Statement:      statement,
		Rationale:      rationale,
		Confidence:     confidence,
		EvidenceStatus: status,
		References:     normalizeReferences(raw.References),
	}
}

func normalizeReferences(raw []RawReference) []models.Reference {
	refs := make([]models.Reference, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		url := strings.TrimSpace(r.URL)
		if title == "" || url == "" {
			continue
		}
		refs = append(refs, models.Reference{
			Title:   title,
			URL:     url,
			Snippet: strings.TrimSpace(r.Snippet),
		})
		if len(refs) == models.MaxReferencesPerFinding {
			break
		}
	}
	return refs
}

func deriveSummary(engine engines.Engine, findings []models.Finding) string {
	var themes []string
	seen := make(map[string]bool)
	for _, f := range findings {
		if seen[f.Theme] {
			continue
		}
		seen[f.Theme] = true
		themes = append(themes, f.Theme)
		if len(themes) == maxSummaryThemes {
			break
		}
	}
	if len(themes) == 0 {
		return fmt.Sprintf("%s returned no findings.", engine.Name)
	}
	return fmt.Sprintf("%s synthesis covering %s.", engine.Name, strings.Join(themes, "; "))
}
