// Package report generates the weekly and monthly AI activity reports: one
// row per period, created on demand or by the scheduler, filled in by a
// single LLM call whose JSON body becomes the report content.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/skill"
)

// Weekly and monthly prompts both trim their input so a busy period cannot
// blow the context window.
const (
	maxEntriesInPrompt = 120
	maxPromptChars     = 14000
	maxTagsPerEntry    = 10
	maxSummaryChars    = 200
)

// WeeklyStore is the persistence contract the weekly service needs.
type WeeklyStore interface {
	GetLatestWeekly(ctx context.Context) (*model.WeeklyReport, error)
	ListWeekly(ctx context.Context, page, size int) ([]model.WeeklyReport, int, error)
	// GetOrCreateWeekly returns the existing row for weekStart or inserts a
	// pending one with the given entry count.
	GetOrCreateWeekly(ctx context.Context, weekStart, weekEnd time.Time, entryCount int) (*model.WeeklyReport, error)
	SaveWeeklyResult(ctx context.Context, r *model.WeeklyReport) error
}

// MonthlyStore is the monthly analogue of WeeklyStore.
type MonthlyStore interface {
	GetLatestMonthly(ctx context.Context) (*model.MonthlyReport, error)
	ListMonthly(ctx context.Context, page, size int) ([]model.MonthlyReport, int, error)
	GetOrCreateMonthly(ctx context.Context, monthStart, monthEnd time.Time, entryCount int) (*model.MonthlyReport, error)
	SaveMonthlyResult(ctx context.Context, r *model.MonthlyReport) error
}

// EntryDigestReader reads the entries anchored inside a date range, by
// time_at (POINT) or time_from (RANGE).
type EntryDigestReader interface {
	CountEntriesInRange(ctx context.Context, start, end time.Time) (int, error)
	ListEntryDigestsInRange(ctx context.Context, start, end time.Time, limit int) ([]model.EntryDigest, error)
}

// WeeklyService drives one week's report lifecycle.
type WeeklyService struct {
	store   WeeklyStore
	entries EntryDigestReader
	llm     skill.ChatLLM
	log     zerolog.Logger
}

func NewWeeklyService(store WeeklyStore, entries EntryDigestReader, llm skill.ChatLLM, log zerolog.Logger) *WeeklyService {
	return &WeeklyService{store: store, entries: entries, llm: llm, log: log.With().Str("component", "weekly_report").Logger()}
}

func (s *WeeklyService) Latest(ctx context.Context) (*model.WeeklyReport, error) {
	return s.store.GetLatestWeekly(ctx)
}

func (s *WeeklyService) List(ctx context.Context, page, size int) ([]model.WeeklyReport, int, error) {
	return s.store.ListWeekly(ctx, page, size)
}

// LastMonday returns the Monday of the week containing now; when now is
// itself a Monday it returns the previous Monday, so the scheduler's Monday
// 00:00 firing covers the week that just ended.
func LastMonday(now time.Time) time.Time {
	day := truncateToDate(now)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, -offset)
}

// GetOrCreate returns the report row for the week starting at weekStart,
// inserting a pending one (with the current entry count) if absent.
func (s *WeeklyService) GetOrCreate(ctx context.Context, weekStart time.Time) (*model.WeeklyReport, error) {
	weekEnd := weekStart.AddDate(0, 0, 6)
	count, err := s.entries.CountEntriesInRange(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrCreateWeekly(ctx, weekStart, weekEnd, count)
}

// Generate fills in the report body via the LLM. A report that already
// completed is returned unchanged; failures are recorded on the row rather
// than returned, so the scheduler's retry cadence owns re-attempts.
func (s *WeeklyService) Generate(ctx context.Context, r *model.WeeklyReport) (*model.WeeklyReport, error) {
	if r.Status == model.ReportCompleted {
		return r, nil
	}

	r.Status = model.ReportGenerating
	r.Attempts++
	if err := s.store.SaveWeeklyResult(ctx, r); err != nil {
		return nil, err
	}

	entries, err := s.entries.ListEntryDigestsInRange(ctx, r.WeekStart, r.WeekEnd, maxEntriesInPrompt)
	if err != nil {
		s.recordWeeklyFailure(ctx, r, err)
		return r, nil
	}

	prompt := buildPrompt(periodWeekly, r.WeekStart, r.WeekEnd, len(entries), entries)
	reply, err := s.llm.Chat(ctx, []skill.ChatMessage{{Role: "user", Content: prompt}}, 0.7)
	if err != nil {
		s.recordWeeklyFailure(ctx, r, err)
		return r, nil
	}

	content, perr := parseContent(reply)
	if perr != nil {
		s.recordWeeklyFailure(ctx, r, perr)
		return r, nil
	}

	raw, _ := json.Marshal(content)
	now := clock.Now()
	r.Content = raw
	r.Status = model.ReportCompleted
	r.GeneratedAt = &now
	r.LastError = nil
	if err := s.store.SaveWeeklyResult(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *WeeklyService) recordWeeklyFailure(ctx context.Context, r *model.WeeklyReport, cause error) {
	s.log.Error().Err(cause).Str("week_start", r.WeekStart.Format("2006-01-02")).Msg("weekly report generation failed")
	msg := cause.Error()
	r.Status = model.ReportFailed
	r.LastError = &msg
	if err := s.store.SaveWeeklyResult(ctx, r); err != nil {
		s.log.Error().Err(err).Msg("failed to persist weekly report failure")
	}
}

// MonthlyService drives one month's report lifecycle.
type MonthlyService struct {
	store   MonthlyStore
	entries EntryDigestReader
	llm     skill.ChatLLM
	log     zerolog.Logger
}

func NewMonthlyService(store MonthlyStore, entries EntryDigestReader, llm skill.ChatLLM, log zerolog.Logger) *MonthlyService {
	return &MonthlyService{store: store, entries: entries, llm: llm, log: log.With().Str("component", "monthly_report").Logger()}
}

func (s *MonthlyService) Latest(ctx context.Context) (*model.MonthlyReport, error) {
	return s.store.GetLatestMonthly(ctx)
}

func (s *MonthlyService) List(ctx context.Context, page, size int) ([]model.MonthlyReport, int, error) {
	return s.store.ListMonthly(ctx, page, size)
}

// LastMonthStart returns the first day of the previous month.
func LastMonthStart(now time.Time) time.Time {
	day := truncateToDate(now)
	firstThisMonth := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstThisMonth.AddDate(0, -1, 0)
}

// MonthEnd returns the last day of monthStart's month.
func MonthEnd(monthStart time.Time) time.Time {
	first := time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1)
}

func (s *MonthlyService) GetOrCreate(ctx context.Context, monthStart time.Time) (*model.MonthlyReport, error) {
	monthEnd := MonthEnd(monthStart)
	count, err := s.entries.CountEntriesInRange(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	return s.store.GetOrCreateMonthly(ctx, monthStart, monthEnd, count)
}

func (s *MonthlyService) Generate(ctx context.Context, r *model.MonthlyReport) (*model.MonthlyReport, error) {
	if r.Status == model.ReportCompleted {
		return r, nil
	}

	r.Status = model.ReportGenerating
	r.Attempts++
	if err := s.store.SaveMonthlyResult(ctx, r); err != nil {
		return nil, err
	}

	entries, err := s.entries.ListEntryDigestsInRange(ctx, r.MonthStart, r.MonthEnd, maxEntriesInPrompt)
	if err != nil {
		s.recordMonthlyFailure(ctx, r, err)
		return r, nil
	}

	prompt := buildPrompt(periodMonthly, r.MonthStart, r.MonthEnd, r.EntryCount, entries)
	reply, err := s.llm.Chat(ctx, []skill.ChatMessage{{Role: "user", Content: prompt}}, 0.7)
	if err != nil {
		s.recordMonthlyFailure(ctx, r, err)
		return r, nil
	}

	content, perr := parseContent(reply)
	if perr == nil && content.Summary == "" {
		perr = fmt.Errorf("model returned empty report content")
	}
	if perr != nil {
		s.recordMonthlyFailure(ctx, r, perr)
		return r, nil
	}

	raw, _ := json.Marshal(content)
	now := clock.Now()
	r.Content = raw
	r.Status = model.ReportCompleted
	r.GeneratedAt = &now
	r.LastError = nil
	if err := s.store.SaveMonthlyResult(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *MonthlyService) recordMonthlyFailure(ctx context.Context, r *model.MonthlyReport, cause error) {
	s.log.Error().Err(cause).Str("month_start", r.MonthStart.Format("2006-01-02")).Msg("monthly report generation failed")
	msg := cause.Error()
	r.Status = model.ReportFailed
	r.LastError = &msg
	if err := s.store.SaveMonthlyResult(ctx, r); err != nil {
		s.log.Error().Err(err).Msg("failed to persist monthly report failure")
	}
}

type period string

const (
	periodWeekly  period = "周报"
	periodMonthly period = "月报"
)

// buildPrompt renders the report prompt. Entries are listed as digest
// lines; an empty period gets a short encouragement prompt instead.
func buildPrompt(kind period, start, end time.Time, entryCount int, entries []model.EntryDigest) string {
	startStr := start.Format("2006-01-02")
	endStr := end.Format("2006-01-02")

	if len(entries) == 0 {
		return fmt.Sprintf(`本期（%s 至 %s）没有记录。

请生成一份简短的%s：
- summary: 简短说明本期无记录
- suggestions: 给出 1-2 条鼓励性建议
- trends: 可以留空

只输出 JSON：{"summary": "...", "suggestions": [...], "trends": ""}`, startStr, endStr, kind)
	}

	var b strings.Builder
	for i, e := range entries {
		if i >= maxEntriesInPrompt {
			break
		}
		tags := e.TagNames
		extra := ""
		if len(tags) > maxTagsPerEntry {
			extra = fmt.Sprintf(" 等%d个", len(tags)-maxTagsPerEntry)
			tags = tags[:maxTagsPerEntry]
		}
		tagsStr := strings.Join(tags, ", ")
		if tagsStr == "" {
			tagsStr = "无标签"
		}
		summary := e.Summary
		if summary == "" {
			summary = "无摘要"
		}
		timeStr := ""
		if e.TimeAt != nil {
			timeStr = e.TimeAt.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n  标签: %s%s\n  摘要: %s\n",
			e.TypeName, e.Title, timeStr, tagsStr, extra, clip(summary, maxSummaryChars))
	}
	entriesContext := clip(strings.TrimSpace(b.String()), maxPromptChars)

	prompt := fmt.Sprintf(`你是 MindAtlas 的智能助手，负责生成用户的%s。

【时间范围】
%s 至 %s

【数据概览】
- 本期记录条数：%d

【本期记录（节选）】
%s

【任务】
请基于以上记录，生成一份简洁的%s，包含以下三个部分：

1. **活动总结** (summary): 概括本期的主要活动和成果
2. **行动建议** (suggestions): 给出 2-5 条具体建议
3. **趋势分析** (trends): 关注领域的变化

【输出格式】
只输出 JSON：{"summary": "...", "suggestions": ["建议1", "建议2"], "trends": "..."}`,
		kind, startStr, endStr, entryCount, entriesContext, kind)
	return clip(prompt, maxPromptChars)
}

// parseContent extracts the report JSON from a model reply that may be
// fenced or surrounded by commentary.
func parseContent(reply string) (model.ReportContent, error) {
	var content model.ReportContent
	if err := json.Unmarshal([]byte(skill.StripCodeFences(reply)), &content); err != nil {
		return model.ReportContent{}, fmt.Errorf("report: model reply is not the expected JSON shape: %w", err)
	}
	return content, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-len("…")]) + "…"
}

func truncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
