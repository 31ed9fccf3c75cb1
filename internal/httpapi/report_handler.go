package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/report"
)

type reportHandler struct {
	weekly  *report.WeeklyService
	monthly *report.MonthlyService
	log     zerolog.Logger
}

type reportPage[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

func (h *reportHandler) listWeekly(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 0)
	size := intParam(r, "size", 10)
	items, total, err := h.weekly.List(r.Context(), page, size)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, reportPage[model.WeeklyReport]{Items: items, Total: total, Page: page, Size: size})
}

func (h *reportHandler) latestWeekly(w http.ResponseWriter, r *http.Request) {
	rep, err := h.weekly.Latest(r.Context())
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, rep)
}

// generateWeekly forces generation for the week starting at
// report.LastMonday(now); an already-completed report is returned as-is.
func (h *reportHandler) generateWeekly(w http.ResponseWriter, r *http.Request) {
	weekStart := report.LastMonday(clock.Now())
	rep, err := h.weekly.GetOrCreate(r.Context(), weekStart)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	rep, err = h.weekly.Generate(r.Context(), rep)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, rep)
}

func (h *reportHandler) listMonthly(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 0)
	size := intParam(r, "size", 10)
	items, total, err := h.monthly.List(r.Context(), page, size)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, reportPage[model.MonthlyReport]{Items: items, Total: total, Page: page, Size: size})
}

func (h *reportHandler) latestMonthly(w http.ResponseWriter, r *http.Request) {
	rep, err := h.monthly.Latest(r.Context())
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, rep)
}

func (h *reportHandler) generateMonthly(w http.ResponseWriter, r *http.Request) {
	monthStart := report.LastMonthStart(clock.Now())
	rep, err := h.monthly.GetOrCreate(r.Context(), monthStart)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	rep, err = h.monthly.Generate(r.Context(), rep)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusOK, rep)
}
