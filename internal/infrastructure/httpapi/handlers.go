package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rockestra/rockestra/internal/rockestra/flowctx"
)

const explainDeadline = 10 * time.Second

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// explainResponse is the JSON shape returned by /explain/{flowName}: the
// terminal outcome plus the full per-request execution trace.
type explainResponse struct {
	OutcomeKind string              `json:"outcomeKind"`
	OutcomeCode string              `json:"outcomeCode"`
	Explain     *flowctx.ExecExplain `json:"explain"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	flowName := chi.URLParam(r, "flowName")

	fc, err := flowctx.New(r.Context(), time.Now().Add(explainDeadline))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	nodeCount := 0
	if def, ok := s.host.Flows[flowName]; ok {
		nodeCount = len(def.Template.Nodes)
	}
	fc.Explain = flowctx.NewExecExplain(nodeCount)

	out, err := s.host.Run(r.Context(), flowName, fc)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(r.Context(), "explain run failed", "flow_name", flowName, "error", err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(explainResponse{
		OutcomeKind: string(out.Kind),
		OutcomeCode: out.Code,
		Explain:     fc.Explain,
	})
}
