package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema is the engine response contract. Only summary and findings
// are required; everything else is typed when present and defaulted later.
const payloadSchema = `{
  "type": "object",
  "required": ["summary", "findings"],
  "properties": {
    "summary": {"type": "string"},
    "overallConfidence": {"type": "string"},
    "warnings": {"type": "array", "items": {"type": "string"}},
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "theme": {"type": "string"},
          "statement": {"type": "string"},
          "rationale": {"type": "string"},
          "confidence": {"type": "string"},
          "evidenceStatus": {"type": "string"},
          "references": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "title": {"type": "string"},
                "url": {"type": "string"},
                "snippet": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompile(payloadSchema)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("normalize: invalid payload schema: %v", err))
	}
	return s
}

// Payload is a schema-valid engine response
type Payload struct {
	Summary           string       `json:"summary"`
	Findings          []RawFinding `json:"findings"`
	OverallConfidence string       `json:"overallConfidence,omitempty"`
	Warnings          []string     `json:"warnings,omitempty"`
}

type RawFinding struct {
	Theme          string         `json:"theme,omitempty"`
	Statement      string         `json:"statement,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
	Confidence     string         `json:"confidence,omitempty"`
	EvidenceStatus string         `json:"evidenceStatus,omitempty"`
	References     []RawReference `json:"references,omitempty"`
}

type RawReference struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SchemaError reports why a response body did not match the payload contract
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload schema mismatch: %s", strings.Join(e.Violations, "; "))
}

// Decode validates body against the payload schema and only then unmarshals
// it. Any failure is returned as a *SchemaError.
func Decode(body []byte) (*Payload, error) {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &SchemaError{Violations: []string{err.Error()}}
	}
	if !result.Valid() {
		violations := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			violations[i] = desc.String()
		}
		return nil, &SchemaError{Violations: violations}
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &SchemaError{Violations: []string{err.Error()}}
	}
	return &p, nil
}
