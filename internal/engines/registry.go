package engines

// Engine identifiers. The set is closed; adding an engine means adding it here
// and to catalog.
const (
	Perplexity = "perplexity"
	OpenAI     = "openai"
	Gemini     = "gemini"
	Elicit     = "elicit"
)

// Engine is the static identity of one research backend
type Engine struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	EnvPrefix string `json:"envPrefix"`
	Strengths string `json:"strengths"`
	Cautions  string `json:"cautions"`
	BestFor   string `json:"bestFor"`
}

var catalog = []Engine{
	{
		ID:        Perplexity,
		Name:      "Perplexity Deep Research",
		EnvPrefix: "PERPLEXITY",
		Strengths: "Fast web-grounded answers with inline citations to current sources.",
		Cautions:  "Citations skew toward recent web content; depth on niche academic topics varies.",
		BestFor:   "Current events, market snapshots and quick source discovery.",
	},
	{
		ID:        OpenAI,
		Name:      "OpenAI Deep Research",
		EnvPrefix: "OPENAI_RESEARCH",
		Strengths: "Long-horizon multi-step browsing with structured, well-argued reports.",
		Cautions:  "Can over-generalise from a few sources; verify quantitative claims.",
		BestFor:   "Broad landscape reviews and structured argumentation.",
	},
	{
		ID:        Gemini,
		Name:      "Gemini Deep Research",
		EnvPrefix: "GEMINI_RESEARCH",
		Strengths: "Wide search coverage and strong synthesis across many documents.",
		Cautions:  "Summaries may blend sources; check attribution on contested points.",
		BestFor:   "Exhaustive source sweeps and cross-document comparison.",
	},
	{
		ID:        Elicit,
		Name:      "Elicit",
		EnvPrefix: "ELICIT",
		Strengths: "Academic literature search with paper-level extraction.",
		Cautions:  "Limited to indexed scholarly literature; weak on industry or grey sources.",
		BestFor:   "Empirical evidence reviews and study-level detail.",
	},
}

// All returns the registered engines in their fixed dispatch order.
func All() []Engine {
	out := make([]Engine, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the engine with the given id
func Lookup(id string) (Engine, bool) {
	for _, e := range catalog {
		if e.ID == id {
			return e, true
		}
	}
	return Engine{}, false
}

// IDs returns the registered engine identifiers in dispatch order
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, e := range catalog {
		ids = append(ids, e.ID)
	}
	return ids
}
