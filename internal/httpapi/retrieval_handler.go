package httpapi

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/retrieval"
)

type retrievalHandler struct {
	svc *retrieval.Service
	log zerolog.Logger
}

func (h *retrievalHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeErr(w, h.log, model.NewValidationError("q", "required query string"))
		return
	}
	mode := ragkg.QueryMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = ragkg.ModeMix
	}
	topK := intParam(r, "top_k", 10)

	out, err := h.svc.Query(r.Context(), q, mode, topK)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, out)
}

func (h *retrievalHandler) graph(w http.ResponseWriter, r *http.Request) {
	nodeLabel := r.URL.Query().Get("node_label")
	if nodeLabel == "" {
		nodeLabel = "*"
	}
	maxDepth := intParam(r, "max_depth", 2)
	maxNodes := intParam(r, "max_nodes", 200)

	out, err := h.svc.GetGraphData(r.Context(), nodeLabel, maxDepth, maxNodes)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, out)
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
