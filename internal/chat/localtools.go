package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/retrieval"
	"github.com/mindatlas/backend/internal/skill"
)

// EntrySearcher is the read surface the entry local tools need.
type EntrySearcher interface {
	SearchEntries(ctx context.Context, keyword, typeCode string, tagNames []string, limit int) ([]model.EntryDigest, error)
	GetEntryDigest(ctx context.Context, id uuid.UUID) (*model.EntryDigest, error)
}

// StatsReader is the read surface the stats local tools need.
type StatsReader interface {
	Dashboard(ctx context.Context) (*model.DashboardStats, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

var searchEntriesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"keyword":   map[string]any{"type": "string", "description": "Keyword matched against title and content."},
		"type_code": map[string]any{"type": "string", "description": "Optional entry type code filter."},
		"tag_names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Match entries carrying any of these tags."},
		"limit":     map[string]any{"type": "integer", "description": "Max results, default 10, cap 100."},
	},
}

// NewSearchEntriesTool lists matching entries as digest objects.
func NewSearchEntriesTool(entries EntrySearcher) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		keyword, _ := args["keyword"].(string)
		typeCode, _ := args["type_code"].(string)
		var tagNames []string
		if raw, ok := args["tag_names"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok && s != "" {
					tagNames = append(tagNames, s)
				}
			}
		}
		limit := intArg(args, "limit", 10)

		digests, err := entries.SearchEntries(ctx, keyword, typeCode, tagNames, limit)
		if err != nil {
			return nil, err
		}
		results := make([]map[string]any, 0, len(digests))
		for _, d := range digests {
			summary := d.Summary
			if summary == "" {
				summary = d.Content
			}
			results = append(results, map[string]any{
				"id":      d.ID.String(),
				"title":   d.Title,
				"type":    d.TypeName,
				"summary": capText(summary, 100),
				"tags":    d.TagNames,
			})
		}
		return map[string]any{"results": results}, nil
	}
}

var getEntryDetailSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entry_id": map[string]any{"type": "string", "description": "Entry UUID."},
	},
	"required": []string{"entry_id"},
}

// NewGetEntryDetailTool returns one entry's full content and tags.
func NewGetEntryDetailTool(entries EntrySearcher) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		raw, _ := args["entry_id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, model.NewValidationError("entry_id", "not a valid entry id")
		}
		d, err := entries.GetEntryDigest(ctx, id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, model.NewNotFoundError("entry_id", raw)
		}
		return map[string]any{
			"id":        d.ID.String(),
			"title":     d.Title,
			"content":   d.Content,
			"type":      d.TypeName,
			"type_code": d.TypeCode,
			"summary":   d.Summary,
			"tags":      d.TagNames,
		}, nil
	}
}

var getStatisticsSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

// NewGetStatisticsTool returns the whole-dataset overview: totals and
// per-type entry counts.
func NewGetStatisticsTool(stats StatsReader) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		d, err := stats.Dashboard(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"total_entries":   d.TotalEntries,
			"total_tags":      d.TotalTags,
			"total_types":     d.TotalTypes,
			"entries_by_type": d.EntriesByType,
		}, nil
	}
}

var analyzeActivitySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"period": map[string]any{"type": "string", "enum": []string{"week", "month", "year"}, "description": "Trailing window to analyze, default month."},
	},
}

// NewAnalyzeActivityTool reports how many entries landed in the trailing
// week/month/year and the daily average.
func NewAnalyzeActivityTool(stats StatsReader) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		period, _ := args["period"].(string)
		days, ok := map[string]int{"week": 7, "month": 30, "year": 365}[period]
		if !ok {
			period, days = "month", 30
		}
		count, err := stats.CountCreatedSince(ctx, time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"period":          period,
			"entries_created": count,
			"avg_per_day":     float64(count) / float64(days),
		}, nil
	}
}

var relationRecommendationsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"entry_id":  map[string]any{"type": "string", "description": "Entry UUID to recommend relations for."},
		"limit":     map[string]any{"type": "integer", "description": "Max recommendations, default 10."},
		"min_score": map[string]any{"type": "number", "description": "Relevance floor in [0,1], default 0.3."},
	},
	"required": []string{"entry_id"},
}

// NewRelationRecommendationsTool surfaces KG-backed relation candidates
// for an entry.
func NewRelationRecommendationsTool(svc *retrieval.Service) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		raw, _ := args["entry_id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, model.NewValidationError("entry_id", "not a valid entry id")
		}
		limit := intArg(args, "limit", 10)
		minScore := 0.3
		if v, ok := args["min_score"].(float64); ok {
			minScore = v
		}

		items, err := svc.RecommendEntryRelations(ctx, id, ragkg.ModeHybrid, limit, minScore, true, true)
		if err != nil {
			return nil, err
		}
		results := make([]map[string]any, 0, len(items))
		for _, item := range items {
			results = append(results, map[string]any{
				"target_entry_id": item.TargetEntryID.String(),
				"relation_type":   item.RelationType,
				"score":           item.Score,
			})
		}
		return map[string]any{"recommendations": results}, nil
	}
}

func intArg(args map[string]any, name string, def int) int {
	if v, ok := args[name].(float64); ok {
		return int(v)
	}
	return def
}

// Schema accessors for cmd-level registry wiring, matching
// CreateEntryToolSchema's shape.
func SearchEntriesToolSchema() map[string]any           { return searchEntriesSchema }
func GetEntryDetailToolSchema() map[string]any          { return getEntryDetailSchema }
func GetStatisticsToolSchema() map[string]any           { return getStatisticsSchema }
func AnalyzeActivityToolSchema() map[string]any         { return analyzeActivitySchema }
func RelationRecommendationsToolSchema() map[string]any { return relationRecommendationsSchema }
