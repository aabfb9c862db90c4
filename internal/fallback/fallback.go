package fallback

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/planner"
)

// angles rotate across findings, offset by the seed
var angles = []string{
	"quantitative indicators",
	"expert interviews",
	"regulatory filings",
	"academic literature",
	"industry benchmarks",
	"market sentiment",
}

const (
	referenceHost = "https://research-scaffold.invalid"
	maxSlugLength = 64
)

// Seed hashes "{engineID}:{question}" into a stable 32-bit value.
func Seed(engineID, question string) uint32 {
	sum := blake2b.Sum256([]byte(engineID + ":" + question))
	return binary.BigEndian.Uint32(sum[:4])
}

// Synthesize builds a deterministic placeholder result for an engine that
// could not be queried live. Identical (engine, question) pairs always yield
// identical output.
func Synthesize(engine engines.Engine, question string, subquestions []string) models.EngineResult {
	seed := Seed(engine.ID, question)
	topic := planner.Topic(question)

	themes := subquestions
	if len(themes) == 0 {
		themes = []string{models.DefaultTheme}
	}

	findings := make([]models.Finding, 0, len(themes))
	for i, theme := range themes {
		angle := angles[(int(seed%uint32(len(angles)))+i)%len(angles)]
		slug := slugify(topic + " " + theme)
		findings = append(findings, models.Finding{
			Theme: theme,
			Statement: fmt.Sprintf("%s scaffolding: review %s through %s to address %q.",
				engine.Name, topic, angle, theme),
			Rationale: fmt.Sprintf("Generated locally because live %s output was unavailable; replace with sourced findings from %s.",
				engine.Name, angle),
			Confidence:     models.ConfidenceLow,
			EvidenceStatus: models.EvidenceUncertain,
			References: []models.Reference{
				{
					Title:   fmt.Sprintf("Placeholder %s source for %s", angle, topic),
					URL:     fmt.Sprintf("%s/%s/%s?seed=%d&ref=1", referenceHost, engine.ID, slug, seed),
					Snippet: "Placeholder reference; no live retrieval was performed.",
				},
				{
					Title:   fmt.Sprintf("Placeholder follow-up reading on %s", theme),
					URL:     fmt.Sprintf("%s/%s/%s?seed=%d&ref=2", referenceHost, engine.ID, slug, seed),
					Snippet: "Placeholder reference; no live retrieval was performed.",
				},
			},
		})
	}

	return models.EngineResult{
		EngineID:   engine.ID,
		EngineName: engine.Name,
		Summary: fmt.Sprintf("%s fallback scaffolding for %s across %d sub-question(s); no live data was retrieved.",
			engine.Name, topic, len(findings)),
		Findings:          findings,
		OverallConfidence: models.ConfidenceLow,
		UsedFallback:      true,
		Warnings:          []string{models.FallbackDisclosure},
	}
}

// WithWarning prepends a failure warning to a fallback result so the cause
// is the first warning a reader sees.
func WithWarning(result models.EngineResult, warning string) models.EngineResult {
	if warning == "" {
		return result
	}
	warnings := make([]string, 0, len(result.Warnings)+1)
	warnings = append(warnings, warning)
	result.Warnings = append(warnings, result.Warnings...)
	return result
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "topic"
	}
	return slug
}
