package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
)

type fakeHeatmapReader struct {
	cells []model.HeatmapCell
	calls int
}

func (f *fakeHeatmapReader) Heatmap(ctx context.Context, start, end time.Time) ([]model.HeatmapCell, error) {
	f.calls++
	return f.cells, nil
}

func doHeatmap(t *testing.T, reader *fakeHeatmapReader, query string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	h := &statsHandler{stats: reader, log: zerolog.Nop()}
	req := httptest.NewRequest("GET", "/api/stats/heatmap"+query, nil)
	rec := httptest.NewRecorder()
	h.heatmap(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v\n%s", err, rec.Body.String())
	}
	return rec, env
}

func TestHeatmap_RequiresStartAndEndTogether(t *testing.T) {
	reader := &fakeHeatmapReader{}
	rec, env := doHeatmap(t, reader, "?startDate=2026-02-01")
	if rec.Code != 422 || env.Success {
		t.Fatalf("lone startDate must be rejected, got %d %+v", rec.Code, env)
	}
	if reader.calls != 0 {
		t.Fatal("validation failure must not hit the store")
	}
}

func TestHeatmap_RejectsEndBeforeStart(t *testing.T) {
	reader := &fakeHeatmapReader{}
	rec, env := doHeatmap(t, reader, "?startDate=2026-02-02&endDate=2026-02-01")
	if rec.Code != 422 || env.Success {
		t.Fatalf("endDate before startDate must be rejected, got %d %+v", rec.Code, env)
	}
}

func TestHeatmap_ExplicitRange(t *testing.T) {
	day, _ := time.Parse("2006-01-02", "2026-02-01")
	reader := &fakeHeatmapReader{cells: []model.HeatmapCell{{Date: day, Count: 3}}}
	rec, env := doHeatmap(t, reader, "?startDate=2026-02-01&endDate=2026-02-28")
	if rec.Code != 200 || !env.Success {
		t.Fatalf("valid range must succeed, got %d %+v", rec.Code, env)
	}
	data, _ := env.Data.(map[string]any)
	if data["start_date"] != "2026-02-01" || data["end_date"] != "2026-02-28" {
		t.Fatalf("echoed range wrong: %+v", data)
	}
}

func TestHeatmap_DefaultsToTrailingYear(t *testing.T) {
	reader := &fakeHeatmapReader{}
	rec, env := doHeatmap(t, reader, "")
	if rec.Code != 200 || !env.Success {
		t.Fatalf("absent range must default, got %d %+v", rec.Code, env)
	}
	if reader.calls != 1 {
		t.Fatalf("store calls = %d, want 1", reader.calls)
	}
}
