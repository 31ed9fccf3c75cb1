package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
)

// HeatmapReader is the slice of StatsRepo the heatmap endpoint needs.
type HeatmapReader interface {
	Heatmap(ctx context.Context, start, end time.Time) ([]model.HeatmapCell, error)
}

type statsHandler struct {
	stats HeatmapReader
	log   zerolog.Logger
}

const heatmapDefaultDays = 365

// heatmap returns per-day entry counts. startDate/endDate must be given
// together; absent both, the trailing year is used.
func (h *statsHandler) heatmap(w http.ResponseWriter, r *http.Request) {
	startRaw := r.URL.Query().Get("startDate")
	endRaw := r.URL.Query().Get("endDate")

	if (startRaw == "") != (endRaw == "") {
		writeErr(w, h.log, model.NewValidationError("startDate", "startDate and endDate must be provided together"))
		return
	}

	var start, end time.Time
	if startRaw == "" {
		end = time.Now().UTC()
		start = end.AddDate(0, 0, -heatmapDefaultDays)
	} else {
		var err error
		start, err = time.Parse("2006-01-02", startRaw)
		if err != nil {
			writeErr(w, h.log, model.NewValidationError("startDate", "must be YYYY-MM-DD"))
			return
		}
		end, err = time.Parse("2006-01-02", endRaw)
		if err != nil {
			writeErr(w, h.log, model.NewValidationError("endDate", "must be YYYY-MM-DD"))
			return
		}
		if end.Before(start) {
			writeErr(w, h.log, model.NewValidationError("endDate", "endDate must not precede startDate"))
			return
		}
	}

	cells, err := h.stats.Heatmap(r.Context(), start, end)
	if err != nil {
		writeErr(w, h.log, err)
		return
	}

	type cell struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}
	data := make([]cell, 0, len(cells))
	for _, c := range cells {
		data = append(data, cell{Date: c.Date.Format("2006-01-02"), Count: c.Count})
	}
	writeData(w, h.log, http.StatusOK, map[string]any{
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
		"data":       data,
	})
}
