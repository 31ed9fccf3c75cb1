package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/outbox"
	"github.com/mindatlas/backend/internal/skill"
)

// EntryOutboxInspector is the subset of EntryOutboxRepo the operator CLI's
// `outbox ls/requeue` commands need.
type EntryOutboxInspector interface {
	ListDead(ctx context.Context, limit int) ([]outbox.EntryRow, error)
	Requeue(ctx context.Context, id int64) error
}

// SkillCatalogueReader exposes the DB skill rows layered onto the
// compile-time catalogue.
type SkillCatalogueReader interface {
	ListSkills(ctx context.Context) ([]model.AssistantSkill, error)
}

type adminHandler struct {
	entryOutbox EntryOutboxInspector
	assistant   SkillCatalogueReader
	log         zerolog.Logger
}

// listDeadOutbox supports `mindatlasctl outbox ls`: every entry_index_outbox
// row that exhausted retries and needs a human to look at it.
func (h *adminHandler) listDeadOutbox(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50)
	rows, err := h.entryOutbox.ListDead(r.Context(), limit)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, rows)
}

// requeueOutbox supports `mindatlasctl outbox requeue <id>`: forces a dead
// row back to pending for a fresh attempt cycle.
func (h *adminHandler) requeueOutbox(w http.ResponseWriter, r *http.Request) {
	idRaw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		writeErr(w, h.log, model.NewValidationError("id", "must be an integer outbox row id"))
		return
	}
	if err := h.entryOutbox.Requeue(r.Context(), id); err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, map[string]any{"id": id, "status": "pending"})
}

// listSkills supports `mindatlasctl skills ls`: the merged system ∪ DB
// skill catalogue the router would see.
func (h *adminHandler) listSkills(w http.ResponseWriter, r *http.Request) {
	dbSkills, err := h.assistant.ListSkills(r.Context())
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	cat := skill.BuildCatalogue(dbSkills)

	type skillSummary struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	descriptions := cat.Descriptions()
	out := make([]skillSummary, 0, len(cat.Names()))
	for _, name := range cat.Names() {
		out = append(out, skillSummary{Name: name, Description: descriptions[name]})
	}
	writeData(w, h.log, http.StatusOK, out)
}
