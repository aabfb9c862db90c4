package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/engines"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

const (
	maxRequestBody  = 64 << 10
	RequestIDHeader = "X-Request-ID"
)

type briefRequest struct {
	Question string `json:"question"`
}

// EngineInfo is one row of GET /v1/engines. Credentials are never listed.
type EngineInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Strengths  string `json:"strengths"`
	Cautions   string `json:"cautions"`
	BestFor    string `json:"bestFor"`
	Configured bool   `json:"configured"`
	Model      string `json:"model,omitempty"`
}

// BriefHandler serves the briefing API
type BriefHandler struct {
	runner  Runner
	configs engines.ConfigSource
	logger  *zap.Logger
}

func NewBriefHandler(runner Runner, configs engines.ConfigSource, logger *zap.Logger) *BriefHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configs == nil {
		configs = engines.StaticConfigs{}
	}
	return &BriefHandler{runner: runner, configs: configs, logger: logger}
}

func (h *BriefHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/briefs", h.handleCreateBrief)
	mux.HandleFunc("/v1/engines", h.handleListEngines)
}

// handleCreateBrief: POST /v1/briefs {"question": "..."}
func (h *BriefHandler) handleCreateBrief(w http.ResponseWriter, r *http.Request) {
	requestID := requestID(w, r)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := h.logger.With(zap.String("request_id", requestID))

	var req briefRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		logger.Debug("Rejected brief request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "request body must be a JSON object with a question field")
		return
	}

	start := time.Now()
	s, err := h.runner.Run(interceptors.WithBriefID(r.Context(), requestID), req.Question)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		logger.Error("Brief failed", zap.String("mode", h.runner.Mode()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "brief could not be produced")
		return
	}

	logger.Info("Brief served",
		zap.String("mode", h.runner.Mode()),
		zap.Int("engines", len(s.Engines)),
		zap.Strings("fallback_engines", s.FallbackEngines()),
		zap.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, s)
}

// handleListEngines: GET /v1/engines
func (h *BriefHandler) handleListEngines(w http.ResponseWriter, r *http.Request) {
	requestID(w, r)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"engines": ListEngines(h.configs.EngineConfigs())})
}

// ListEngines describes the registry in dispatch order
func ListEngines(cfgs engines.Configs) []EngineInfo {
	out := make([]EngineInfo, 0, len(engines.All()))
	for _, e := range engines.All() {
		c := cfgs.For(e.ID)
		out = append(out, EngineInfo{
			ID:         e.ID,
			Name:       e.Name,
			Strengths:  e.Strengths,
			Cautions:   e.Cautions,
			BestFor:    e.BestFor,
			Configured: c.Live(),
			Model:      c.Model,
		})
	}
	return out
}

// requestID echoes the caller's request ID or assigns a new one
func requestID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return id
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
