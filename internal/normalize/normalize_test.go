package normalize

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

func perplexity(t *testing.T) engines.Engine {
	e, ok := engines.Lookup(engines.Perplexity)
	require.True(t, ok)
	return e
}

func TestDecodeSchemaMismatch(t *testing.T) {
	bodies := map[string]string{
		"missing summary":     `{"findings": []}`,
		"null summary":        `{"summary": null, "findings": []}`,
		"findings not a list": `{"summary": "s", "findings": {"a": 1}}`,
		"missing findings":    `{"summary": "s"}`,
		"not an object":       `[1, 2]`,
		"not json":            `<html>oops</html>`,
		"empty":               ``,
		"bad finding type":    `{"summary": "s", "findings": ["text"]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			p, err := Decode([]byte(body))
			assert.Nil(t, p)
			var se *SchemaError
			require.True(t, errors.As(err, &se), "expected SchemaError, got %v", err)
			assert.NotEmpty(t, se.Violations)
		})
	}
}

func TestDecodeValid(t *testing.T) {
	p, err := Decode([]byte(`{
		"summary": "  ",
		"findings": [{"statement": "Demand is rising", "confidence": "high",
			"references": [{"title": "t", "url": "https://a"}]}],
		"overallConfidence": "medium",
		"warnings": ["partial index"],
		"extra": true
	}`))
	require.NoError(t, err)
	require.Len(t, p.Findings, 1)
	assert.Equal(t, "Demand is rising", p.Findings[0].Statement)
	assert.Equal(t, "medium", p.OverallConfidence)
	assert.Equal(t, []string{"partial index"}, p.Warnings)
}

func TestNormalizeDefaults(t *testing.T) {
	e := perplexity(t)
	p := &Payload{
		Summary: "",
		Findings: []RawFinding{
			{Confidence: "bogus", EvidenceStatus: ""},
			{Theme: "  Supply  ", Statement: " Prices fall ", Rationale: "r", Confidence: "LOW", EvidenceStatus: "Confirmed"},
		},
	}
	res := Normalize(e, p, []string{"What drives demand?"}, "https://pplx.example/research")

	assert.False(t, res.UsedFallback)
	assert.Equal(t, "https://pplx.example/research", res.Endpoint)
	require.Len(t, res.Findings, 2)

	first := res.Findings[0]
	assert.Equal(t, "What drives demand?", first.Theme)
	assert.Contains(t, first.Statement, e.Name)
	assert.Contains(t, first.Rationale, e.Name)
	assert.Equal(t, models.ConfidenceMedium, first.Confidence)
	assert.Equal(t, models.EvidenceUncertain, first.EvidenceStatus)
	assert.Empty(t, first.References)

	second := res.Findings[1]
	assert.Equal(t, "Supply", second.Theme)
	assert.Equal(t, "Prices fall", second.Statement)
	assert.Equal(t, models.ConfidenceLow, second.Confidence)
	assert.Equal(t, models.EvidenceConfirmed, second.EvidenceStatus)

	// medium + low averages 1.5
	assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)
	assert.Equal(t, "Perplexity Deep Research synthesis covering What drives demand?; Supply.", res.Summary)
}

func TestNormalizeDefaultThemeWithoutSubquestions(t *testing.T) {
	res := Normalize(perplexity(t), &Payload{Summary: "s", Findings: []RawFinding{{Statement: "x"}}}, nil, "")
	assert.Equal(t, models.DefaultTheme, res.Findings[0].Theme)
	assert.Equal(t, "s", res.Summary)
}

func TestNormalizeReferences(t *testing.T) {
	raw := []RawReference{
		{Title: "", URL: "https://no-title"},
		{Title: "no url", URL: "  "},
	}
	for i := 0; i < 8; i++ {
		raw = append(raw, RawReference{Title: fmt.Sprintf(" ref %d ", i), URL: fmt.Sprintf(" https://r/%d ", i)})
	}
	res := Normalize(perplexity(t), &Payload{Summary: "s", Findings: []RawFinding{{Statement: "x", References: raw}}}, nil, "")

	refs := res.Findings[0].References
	require.Len(t, refs, models.MaxReferencesPerFinding)
	for i, r := range refs {
		assert.Equal(t, fmt.Sprintf("ref %d", i), r.Title)
		assert.Equal(t, fmt.Sprintf("https://r/%d", i), r.URL)
	}
}

func TestNormalizeOverallConfidence(t *testing.T) {
	e := perplexity(t)
	high := []RawFinding{{Confidence: "high"}, {Confidence: "high"}, {Confidence: "medium"}}

	res := Normalize(e, &Payload{Summary: "s", Findings: high}, nil, "")
	assert.Equal(t, models.ConfidenceHigh, res.OverallConfidence)

	res = Normalize(e, &Payload{Summary: "s", Findings: high, OverallConfidence: "Low"}, nil, "")
	assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)

	res = Normalize(e, &Payload{Summary: "", Findings: nil}, nil, "")
	assert.Equal(t, models.ConfidenceLow, res.OverallConfidence)
	assert.True(t, strings.HasSuffix(res.Summary, "returned no findings."))
}

func TestNormalizeWarningsTrimmed(t *testing.T) {
	res := Normalize(perplexity(t), &Payload{Summary: "s", Warnings: []string{" stale ", "", "  "}}, nil, "")
	assert.Equal(t, []string{"stale"}, res.Warnings)
}
