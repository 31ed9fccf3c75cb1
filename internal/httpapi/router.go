package httpapi

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/attachment"
	"github.com/mindatlas/backend/internal/chat"
	"github.com/mindatlas/backend/internal/report"
	"github.com/mindatlas/backend/internal/retrieval"
)

// RouterDeps bundles everything the route table serves.
type RouterDeps struct {
	Runner        *chat.Runner
	Conversations ConversationCreator
	Retrieval     *retrieval.Service
	EntryOutbox   EntryOutboxInspector
	Assistant     SkillCatalogueReader
	Uploader      *attachment.Uploader
	MaxFileSizeMB int64
	Weekly        *report.WeeklyService
	Monthly       *report.MonthlyService
	Stats         HeatmapReader
	Log           zerolog.Logger
}

// NewRouter builds the full route table: health, assistant chat (SSE),
// retrieval, attachment upload, reports, and stats, following the memory
// service's NewRouter-returns-*mux.Router shape.
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()

	h := &chatHandler{runner: deps.Runner, conversations: deps.Conversations, log: deps.Log}
	r := &retrievalHandler{svc: deps.Retrieval, log: deps.Log}
	a := &adminHandler{entryOutbox: deps.EntryOutbox, assistant: deps.Assistant, log: deps.Log}
	att := &attachmentHandler{uploader: deps.Uploader, maxFileSizeMB: deps.MaxFileSizeMB, log: deps.Log}
	rep := &reportHandler{weekly: deps.Weekly, monthly: deps.Monthly, log: deps.Log}
	st := &statsHandler{stats: deps.Stats, log: deps.Log}

	router.HandleFunc("/api/health", healthHandler).Methods("GET")

	router.HandleFunc("/api/conversations", h.create).Methods("POST")
	router.HandleFunc("/api/conversations/{id}/messages", h.sendMessage).Methods("POST")

	router.HandleFunc("/api/entries/{id}/attachments", att.upload).Methods("POST")

	router.HandleFunc("/api/retrieval/query", r.query).Methods("GET")
	router.HandleFunc("/api/retrieval/graph", r.graph).Methods("GET")

	router.HandleFunc("/api/reports/weekly", rep.listWeekly).Methods("GET")
	router.HandleFunc("/api/reports/weekly/latest", rep.latestWeekly).Methods("GET")
	router.HandleFunc("/api/reports/weekly/generate", rep.generateWeekly).Methods("POST")
	router.HandleFunc("/api/reports/monthly", rep.listMonthly).Methods("GET")
	router.HandleFunc("/api/reports/monthly/latest", rep.latestMonthly).Methods("GET")
	router.HandleFunc("/api/reports/monthly/generate", rep.generateMonthly).Methods("POST")

	router.HandleFunc("/api/stats/heatmap", st.heatmap).Methods("GET")

	// Operator-facing endpoints backing `mindatlasctl outbox ls/requeue`
	// and `mindatlasctl skills ls`.
	router.HandleFunc("/api/admin/outbox/dead", a.listDeadOutbox).Methods("GET")
	router.HandleFunc("/api/admin/outbox/requeue", a.requeueOutbox).Methods("POST")
	router.HandleFunc("/api/admin/skills", a.listSkills).Methods("GET")

	return router
}
