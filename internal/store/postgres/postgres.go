// Package postgres implements MindAtlas's storage contracts against
// PostgreSQL using database/sql and the pgx stdlib driver, following the
// same Open/NewWithDB/raw-SQL-repository shape the memory service uses for
// its own store.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Store bundles every Postgres-backed repository MindAtlas wires together.
type Store struct {
	db *sql.DB

	Entries         *EntryRepo
	RelationTypes   *RelationTypeRepo
	Relations       *RelationRepo
	Attachments     *AttachmentRepo
	EntryOutbox     *EntryOutboxRepo
	AttachmentIndex *AttachmentIndexOutboxRepo
	AttachmentParse *AttachmentParseOutboxRepo
	Conversations   *ConversationRepo
	Assistant       *AssistantRepo
	Reports         *ReportRepo
	Stats           *StatsRepo
}

// NewWithDB constructs a Store backed directly by an existing *sql.DB, for
// callers (e.g. integration tests) that already manage the connection.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:              db,
		Entries:         &EntryRepo{db: db},
		RelationTypes:   &RelationTypeRepo{db: db},
		Relations:       &RelationRepo{db: db},
		Attachments:     &AttachmentRepo{db: db},
		EntryOutbox:     &EntryOutboxRepo{db: db},
		AttachmentIndex: &AttachmentIndexOutboxRepo{db: db},
		AttachmentParse: &AttachmentParseOutboxRepo{db: db},
		Conversations:   &ConversationRepo{db: db},
		Assistant:       &AssistantRepo{db: db},
		Reports:         &ReportRepo{db: db},
		Stats:           &StatsRepo{db: db},
	}
}

// New opens dsn and returns a ready Store.
func New(dsn string) (*Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }
