package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportStatus is the lifecycle of an AI-generated periodic report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportGenerating ReportStatus = "generating"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// ReportContent is the structured body the LLM produces for a report.
type ReportContent struct {
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
	Trends      string   `json:"trends"`
}

// WeeklyReport summarizes one Monday-to-Sunday week of entries.
type WeeklyReport struct {
	ID          uuid.UUID
	WeekStart   time.Time // date, Monday
	WeekEnd     time.Time // date, Sunday
	EntryCount  int
	Status      ReportStatus
	Content     json.RawMessage
	Attempts    int
	LastError   *string
	GeneratedAt *time.Time
	CreatedAt   time.Time
}

// MonthlyReport summarizes one calendar month of entries.
type MonthlyReport struct {
	ID          uuid.UUID
	MonthStart  time.Time // date, first of month
	MonthEnd    time.Time // date, last of month
	EntryCount  int
	Status      ReportStatus
	Content     json.RawMessage
	Attempts    int
	LastError   *string
	GeneratedAt *time.Time
	CreatedAt   time.Time
}

// EntryDigest is the slice of an Entry the report prompts and the
// assistant's search tools need: title, type, tags, time, summary.
type EntryDigest struct {
	ID       uuid.UUID
	Title    string
	TypeName string
	TypeCode string
	TagNames []string
	Summary  string
	Content  string
	TimeAt   *time.Time
}

// DashboardStats is the whole-dataset overview the get_statistics tool
// returns.
type DashboardStats struct {
	TotalEntries  int
	TotalTags     int
	TotalTypes    int
	EntriesByType map[string]int
}

// HeatmapCell is one day's entry count in the stats heatmap.
type HeatmapCell struct {
	Date  time.Time
	Count int
}
