package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/skill"
)

type fakeWeeklyStore struct {
	report *model.WeeklyReport
	saves  int
}

func (s *fakeWeeklyStore) GetLatestWeekly(ctx context.Context) (*model.WeeklyReport, error) {
	return s.report, nil
}

func (s *fakeWeeklyStore) ListWeekly(ctx context.Context, page, size int) ([]model.WeeklyReport, int, error) {
	if s.report == nil {
		return nil, 0, nil
	}
	return []model.WeeklyReport{*s.report}, 1, nil
}

func (s *fakeWeeklyStore) GetOrCreateWeekly(ctx context.Context, weekStart, weekEnd time.Time, entryCount int) (*model.WeeklyReport, error) {
	if s.report == nil {
		s.report = &model.WeeklyReport{
			ID: uuid.New(), WeekStart: weekStart, WeekEnd: weekEnd,
			EntryCount: entryCount, Status: model.ReportPending,
		}
	}
	return s.report, nil
}

func (s *fakeWeeklyStore) SaveWeeklyResult(ctx context.Context, r *model.WeeklyReport) error {
	s.report = r
	s.saves++
	return nil
}

type fakeDigestReader struct {
	digests []model.EntryDigest
}

func (f *fakeDigestReader) CountEntriesInRange(ctx context.Context, start, end time.Time) (int, error) {
	return len(f.digests), nil
}

func (f *fakeDigestReader) ListEntryDigestsInRange(ctx context.Context, start, end time.Time, limit int) ([]model.EntryDigest, error) {
	return f.digests, nil
}

type fakeReportLLM struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeReportLLM) Chat(ctx context.Context, msgs []skill.ChatMessage, temperature float64) (string, error) {
	f.prompt = msgs[len(msgs)-1].Content
	return f.reply, f.err
}

func weekStartFor(t *testing.T, s string) time.Time {
	t.Helper()
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return day
}

func TestLastMonday(t *testing.T) {
	cases := map[string]string{
		"2026-08-01": "2026-07-27", // Saturday -> previous Monday
		"2026-07-28": "2026-07-27", // Tuesday -> this week's Monday
		"2026-07-27": "2026-07-20", // Monday -> a full week back
	}
	for now, want := range cases {
		got := LastMonday(weekStartFor(t, now))
		if got.Format("2006-01-02") != want {
			t.Errorf("LastMonday(%s) = %s, want %s", now, got.Format("2006-01-02"), want)
		}
	}
}

func TestLastMonthStart(t *testing.T) {
	got := LastMonthStart(weekStartFor(t, "2026-08-02"))
	if got.Format("2006-01-02") != "2026-07-01" {
		t.Errorf("LastMonthStart() = %s, want 2026-07-01", got.Format("2006-01-02"))
	}
	if end := MonthEnd(got); end.Format("2006-01-02") != "2026-07-31" {
		t.Errorf("MonthEnd() = %s, want 2026-07-31", end.Format("2006-01-02"))
	}
}

func TestWeeklyGenerate_CompletedIsNotRegenerated(t *testing.T) {
	store := &fakeWeeklyStore{report: &model.WeeklyReport{Status: model.ReportCompleted}}
	llm := &fakeReportLLM{}
	svc := NewWeeklyService(store, &fakeDigestReader{}, llm, zerolog.Nop())

	r, err := svc.Generate(context.Background(), store.report)
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if r.Status != model.ReportCompleted || store.saves != 0 {
		t.Fatalf("completed report must pass through untouched, got status=%v saves=%d", r.Status, store.saves)
	}
	if llm.prompt != "" {
		t.Fatal("the LLM must not be called for a completed report")
	}
}

func TestWeeklyGenerate_Success(t *testing.T) {
	store := &fakeWeeklyStore{}
	entries := &fakeDigestReader{digests: []model.EntryDigest{
		{ID: uuid.New(), Title: "Go 泛型学习", TypeName: "Note", TagNames: []string{"golang"}, Summary: "学习了类型参数"},
	}}
	llm := &fakeReportLLM{reply: "```json\n{\"summary\":\"本周学习了 Go\",\"suggestions\":[\"继续练习\"],\"trends\":\"技术学习为主\"}\n```"}
	svc := NewWeeklyService(store, entries, llm, zerolog.Nop())

	weekStart := weekStartFor(t, "2026-07-27")
	r, err := svc.GetOrCreate(context.Background(), weekStart)
	if err != nil {
		t.Fatalf("GetOrCreate(): %v", err)
	}
	if r.EntryCount != 1 {
		t.Fatalf("EntryCount = %d, want 1", r.EntryCount)
	}

	r, err = svc.Generate(context.Background(), r)
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if r.Status != model.ReportCompleted {
		t.Fatalf("status = %v, want completed (last_error=%v)", r.Status, r.LastError)
	}
	if r.GeneratedAt == nil || len(r.Content) == 0 {
		t.Fatalf("completed report must carry content and generated_at, got %+v", r)
	}
	if r.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", r.Attempts)
	}
	if !strings.Contains(llm.prompt, "Go 泛型学习") {
		t.Fatalf("prompt must embed the week's entries, got:\n%s", llm.prompt)
	}
}

func TestWeeklyGenerate_LLMFailureRecordedOnRow(t *testing.T) {
	store := &fakeWeeklyStore{}
	llm := &fakeReportLLM{err: errors.New("backend down")}
	svc := NewWeeklyService(store, &fakeDigestReader{}, llm, zerolog.Nop())

	r, _ := svc.GetOrCreate(context.Background(), weekStartFor(t, "2026-07-27"))
	r, err := svc.Generate(context.Background(), r)
	if err != nil {
		t.Fatalf("Generate() must not surface generation failures: %v", err)
	}
	if r.Status != model.ReportFailed {
		t.Fatalf("status = %v, want failed", r.Status)
	}
	if r.LastError == nil || !strings.Contains(*r.LastError, "backend down") {
		t.Fatalf("last_error = %v, want the cause recorded", r.LastError)
	}
}

func TestWeeklyGenerate_UnparseableReplyFails(t *testing.T) {
	store := &fakeWeeklyStore{}
	llm := &fakeReportLLM{reply: "sorry, I can't produce JSON today"}
	svc := NewWeeklyService(store, &fakeDigestReader{}, llm, zerolog.Nop())

	r, _ := svc.GetOrCreate(context.Background(), weekStartFor(t, "2026-07-27"))
	r, err := svc.Generate(context.Background(), r)
	if err != nil {
		t.Fatalf("Generate(): %v", err)
	}
	if r.Status != model.ReportFailed {
		t.Fatalf("status = %v, want failed for an unparseable reply", r.Status)
	}
}

func TestBuildPrompt_EmptyPeriod(t *testing.T) {
	start := weekStartFor(t, "2026-07-27")
	prompt := buildPrompt(periodWeekly, start, start.AddDate(0, 0, 6), 0, nil)
	if !strings.Contains(prompt, "没有记录") {
		t.Fatalf("empty period must get the short encouragement prompt, got:\n%s", prompt)
	}
}

func TestBuildPrompt_CapsLength(t *testing.T) {
	long := strings.Repeat("x", 4000)
	var digests []model.EntryDigest
	for i := 0; i < 20; i++ {
		digests = append(digests, model.EntryDigest{Title: "t", TypeName: "Note", Summary: long})
	}
	start := weekStartFor(t, "2026-07-01")
	prompt := buildPrompt(periodMonthly, start, MonthEnd(start), len(digests), digests)
	if len(prompt) > maxPromptChars {
		t.Fatalf("prompt length %d exceeds cap %d", len(prompt), maxPromptChars)
	}
}
