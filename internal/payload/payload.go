// Package payload renders the fixed document template the indexer sends to
// the knowledge-graph engine, and derives the indexable predicate the
// leased worker pool uses to choose upsert vs delete.
package payload

import (
	"strings"

	"github.com/mindatlas/backend/internal/model"
)

// Entry holds the fields the template needs; summary/content are pointers
// so "absent" and "empty string" both collapse to an omitted section.
type Entry struct {
	Title    string
	Summary  *string
	Content  *string
	TypeName string
	TypeCode string
	TagNames []string
}

// Build renders:
//
//	Title: <title>
//	Type: <name> (<code>)
//	Tags: a, b, c
//
//	Summary:
//	<summary>
//
//	Content:
//	<content>
//
// with empty sections omitted.
func Build(e Entry) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(e.Title)
	b.WriteString("\nType: ")
	b.WriteString(e.TypeName)
	b.WriteString(" (")
	b.WriteString(e.TypeCode)
	b.WriteString(")")

	if len(e.TagNames) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(e.TagNames, ", "))
	}

	if e.Summary != nil && strings.TrimSpace(*e.Summary) != "" {
		b.WriteString("\n\nSummary:\n")
		b.WriteString(*e.Summary)
	}

	if e.Content != nil && strings.TrimSpace(*e.Content) != "" {
		b.WriteString("\n\nContent:\n")
		b.WriteString(*e.Content)
	}

	return b.String()
}

// Indexable reports whether an entry type's flags make entries of that type
// eligible for KG indexing.
func Indexable(t model.EntryType) bool {
	return t.Indexable()
}
