package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/outbox"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/ragruntime"
)

// fakeEntryStore is an in-memory outbox.EntryStore: enough of
// ClaimBatch/ack-path/HasNewerActiveUpsert semantics to drive
// EntryWorker.processRow without Postgres.
type fakeEntryStore struct {
	mu        sync.Mutex
	rows      map[int64]*outbox.EntryRow
	nextID    int64
	succeeded []int64
	retried   []int64
	dead      []int64
	pending   []int64
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{rows: map[int64]*outbox.EntryRow{}}
}

// seed inserts a row directly (bypassing the real coalescing logic, which
// lives in the Postgres repo and isn't under test here).
func (s *fakeEntryStore) seed(row outbox.EntryRow) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row.ID = s.nextID
	s.rows[row.ID] = &row
	return row.ID
}

func (s *fakeEntryStore) EnqueueUpsert(ctx context.Context, entryID uuid.UUID, entryUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows[s.nextID] = &outbox.EntryRow{ID: s.nextID, EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &entryUpdatedAt, Status: outbox.StatusPending, CreatedAt: time.Now()}
	return nil
}

func (s *fakeEntryStore) EnqueueDelete(ctx context.Context, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows[s.nextID] = &outbox.EntryRow{ID: s.nextID, EntryID: entryID, Op: outbox.OpDelete, Status: outbox.StatusPending, CreatedAt: time.Now()}
	return nil
}

// ClaimBatch returns every pending row, mirroring the real claim query's
// "only pending/expired-processing" filter, and flips them to processing.
func (s *fakeEntryStore) ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]outbox.EntryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.EntryRow
	for _, row := range s.rows {
		if len(out) >= n {
			break
		}
		if row.Status != outbox.StatusPending || row.Attempts >= maxAttempts {
			continue
		}
		row.Status = outbox.StatusProcessing
		row.Attempts++
		row.LockedBy = &workerID
		out = append(out, *row)
	}
	return out, nil
}

func (s *fakeEntryStore) MarkSucceeded(ctx context.Context, id int64, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].Status = outbox.StatusSucceeded
	s.succeeded = append(s.succeeded, id)
	return nil
}

func (s *fakeEntryStore) MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = outbox.StatusPending
	row.LastError = &lastErr
	s.retried = append(s.retried, id)
	return nil
}

func (s *fakeEntryStore) MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = outbox.StatusDead
	row.LastError = &lastErr
	s.dead = append(s.dead, id)
	return nil
}

func (s *fakeEntryStore) MarkPending(ctx context.Context, id int64, workerID string, availableAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = outbox.StatusPending
	row.Attempts = 0
	s.pending = append(s.pending, id)
	return nil
}

// HasNewerActiveUpsert mirrors the Postgres predicate directly against the
// in-memory row set: an active upsert for entryID, other than excludeID,
// created after afterCreatedAt.
func (s *fakeEntryStore) HasNewerActiveUpsert(ctx context.Context, entryID uuid.UUID, excludeID int64, afterCreatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.EntryID != entryID || row.ID == excludeID || row.Op != outbox.OpUpsert {
			continue
		}
		if row.Status != outbox.StatusPending && row.Status != outbox.StatusProcessing {
			continue
		}
		if row.CreatedAt.After(afterCreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

// fakeEntryReader is an in-memory store.EntryReader.
type fakeEntryReader struct {
	mu    sync.Mutex
	entry map[uuid.UUID]model.Entry
	types map[uuid.UUID]model.EntryType
}

func newFakeEntryReader() *fakeEntryReader {
	return &fakeEntryReader{entry: map[uuid.UUID]model.Entry{}, types: map[uuid.UUID]model.EntryType{}}
}

func (r *fakeEntryReader) GetEntry(ctx context.Context, id uuid.UUID) (*model.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entry[id]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (r *fakeEntryReader) GetEntryType(ctx context.Context, id uuid.UUID) (*model.EntryType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.types[id]
	return &t, nil
}

func (r *fakeEntryReader) put(e model.Entry, t model.EntryType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry[e.ID] = e
	r.types[t.ID] = t
}

// fakeEngine counts Insert/DeleteByDocID calls and lets tests force errors.
type fakeEngine struct {
	mu        sync.Mutex
	inserts   []string // docID of each Insert call
	deletes   []string
	insertErr error
	onInsert  func() // runs during Insert, e.g. to edit the entry mid-flight
}

func (e *fakeEngine) Insert(ctx context.Context, text string, docID, filePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insertErr != nil {
		return e.insertErr
	}
	if e.onInsert != nil {
		e.onInsert()
	}
	e.inserts = append(e.inserts, docID)
	return nil
}

func (e *fakeEngine) DeleteByDocID(ctx context.Context, docID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes = append(e.deletes, docID)
	return nil
}

func (e *fakeEngine) QueryLLM(ctx context.Context, q string, p ragkg.QueryParam) (ragkg.QueryResult, error) {
	return ragkg.QueryResult{}, nil
}

func (e *fakeEngine) GetKnowledgeGraph(ctx context.Context, nodeLabel string, maxDepth, maxNodes int) (ragkg.GraphData, error) {
	return ragkg.GraphData{}, nil
}

func (e *fakeEngine) ChunksVDBQuery(ctx context.Context, q string, topK int) ([]ragkg.Source, error) {
	return nil, nil
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		PollIntervalMS: 10,
		BatchSize:      10,
		MaxAttempts:    3,
		LockTTLSec:     30,
		BackoffBaseSec: 1,
		BackoffCapSec:  60,
	}
}

func newTestWorker(t *testing.T, st *fakeEntryStore, entries *fakeEntryReader, engine *fakeEngine) *EntryWorker {
	t.Helper()
	rt := ragruntime.New[ragkg.Engine](engine, 2*time.Second, 16)
	rt.Start()
	t.Cleanup(rt.Stop)
	indexer := ragkg.NewIndexer(rt, true)
	return NewEntryWorker(st, entries, indexer, testPipelineConfig(), zerolog.Nop())
}

func indexableType() model.EntryType {
	return model.EntryType{ID: uuid.New(), Code: "note", Name: "Note", GraphEnabled: true, AIEnabled: true, Enabled: true}
}

// TestStaleUpsert_DroppedWhenNewerActiveUpsertExists covers the intended
// staleness-guard path: row.EntryUpdatedAt predates entry.UpdatedAt, and a
// second active upsert row for the same entry will reprocess current state,
// so the stale row is dropped rather than re-indexed.
func TestStaleUpsert_DroppedWhenNewerActiveUpsertExists(t *testing.T) {
	st := newFakeEntryStore()
	entries := newFakeEntryReader()
	engine := &fakeEngine{}
	w := newTestWorker(t, st, entries, engine)

	typ := indexableType()
	entryID := uuid.New()
	now := time.Now()
	stale := now.Add(-time.Hour)
	entries.put(model.Entry{ID: entryID, Title: "current", TypeID: typ.ID, UpdatedAt: now}, typ)

	staleRowID := st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &stale, Status: outbox.StatusPending, CreatedAt: now.Add(-2 * time.Minute)})
	// Newer active upsert row for the same entry, created after the stale row.
	st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &now, Status: outbox.StatusPending, CreatedAt: now.Add(-time.Minute)})

	// Claim both rows but process only the stale one: the newer row stays
	// claimed (active), and processing it would index the entry itself.
	rows, err := st.ClaimBatch(context.Background(), w.id, 10, w.cfg.LockTTL(), w.cfg.MaxAttempts)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	for _, row := range rows {
		if row.ID == staleRowID {
			w.processRow(context.Background(), row)
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rows[staleRowID].Status != outbox.StatusSucceeded {
		t.Fatalf("stale row status = %v, want succeeded (dropped)", st.rows[staleRowID].Status)
	}
	if len(engine.inserts) != 0 {
		t.Fatalf("expected the stale row's payload never reached the engine, got %d inserts", len(engine.inserts))
	}
}

// TestStaleUpsert_ProcessedWhenNoNewerUpsertExists: a tag/time-only change
// bumps entry.updated_at without enqueuing a new upsert, so
// entry_updated_at < updated_at holds but no newer active upsert exists.
// The row must still be processed against current entry state rather than
// silently dropped.
func TestStaleUpsert_ProcessedWhenNoNewerUpsertExists(t *testing.T) {
	st := newFakeEntryStore()
	entries := newFakeEntryReader()
	engine := &fakeEngine{}
	w := newTestWorker(t, st, entries, engine)

	typ := indexableType()
	entryID := uuid.New()
	now := time.Now()
	stale := now.Add(-time.Hour)
	entries.put(model.Entry{ID: entryID, Title: "current", TypeID: typ.ID, UpdatedAt: now}, typ)

	onlyRowID := st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &stale, Status: outbox.StatusPending, CreatedAt: now.Add(-2 * time.Minute)})

	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	st.mu.Lock()
	succeeded := st.rows[onlyRowID].Status == outbox.StatusSucceeded
	st.mu.Unlock()
	if !succeeded {
		t.Fatalf("row status = %v, want succeeded (processed, not dropped)", st.rows[onlyRowID].Status)
	}
	if len(engine.inserts) != 1 {
		t.Fatalf("expected the entry to be indexed once, got %d inserts", len(engine.inserts))
	}
}

// TestCoalescedRequeue covers the ack-path coalescing policy: if the
// entry's indexable signature changed again while the row was mid-flight,
// the same row is re-armed to pending instead of marked succeeded.
func TestCoalescedRequeue(t *testing.T) {
	st := newFakeEntryStore()
	entries := newFakeEntryReader()
	engine := &fakeEngine{}
	w := newTestWorker(t, st, entries, engine)

	typ := indexableType()
	entryID := uuid.New()
	now := time.Now()
	original := model.Entry{ID: entryID, Title: "v1", TypeID: typ.ID, UpdatedAt: now}
	entries.put(original, typ)

	rowID := st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &now, Status: outbox.StatusPending, CreatedAt: now})

	rows, err := st.ClaimBatch(context.Background(), w.id, 10, w.cfg.LockTTL(), w.cfg.MaxAttempts)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 claimed row, got %d", len(rows))
	}

	// Simulate the entry changing again while the row is being indexed:
	// the edit lands during the engine insert, after processRow has read the
	// entry and before the ack (the window the coalescing requeue closes).
	changed := original
	changed.Title = "v2"
	changed.UpdatedAt = now.Add(time.Minute)
	engine.onInsert = func() { entries.put(changed, typ) }

	w.processRow(context.Background(), rows[0])

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rows[rowID].Status != outbox.StatusPending {
		t.Fatalf("row status = %v, want pending (coalesced requeue)", st.rows[rowID].Status)
	}
	if st.rows[rowID].Attempts != 0 {
		t.Fatalf("coalesced requeue should reset attempts, got %d", st.rows[rowID].Attempts)
	}
	if len(st.succeeded) != 0 {
		t.Fatalf("row should not have been marked succeeded outright, got %v", st.succeeded)
	}
}

// TestMissingEntry_RewrittenToDelete covers the "entry gone entirely"
// translation: an upsert row for an entry that no longer exists is
// processed as a delete so the KG gets cleaned up.
func TestMissingEntry_RewrittenToDelete(t *testing.T) {
	st := newFakeEntryStore()
	entries := newFakeEntryReader()
	engine := &fakeEngine{}
	w := newTestWorker(t, st, entries, engine)

	entryID := uuid.New()
	now := time.Now()
	rowID := st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &now, Status: outbox.StatusPending, CreatedAt: now})

	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	if len(engine.deletes) != 1 || engine.deletes[0] != entryID.String() {
		t.Fatalf("expected a delete for %s, got deletes=%v inserts=%v", entryID, engine.deletes, engine.inserts)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rows[rowID].Status != outbox.StatusSucceeded {
		t.Fatalf("row status = %v, want succeeded", st.rows[rowID].Status)
	}
}

// TestRetryableFailure_ScheduledForRetry covers the retry path: a
// retryable engine error short of max attempts goes back to pending with
// an incremented attempt count, not straight to dead.
func TestRetryableFailure_ScheduledForRetry(t *testing.T) {
	st := newFakeEntryStore()
	entries := newFakeEntryReader()
	engine := &fakeEngine{insertErr: errTransient{}}
	w := newTestWorker(t, st, entries, engine)

	typ := indexableType()
	entryID := uuid.New()
	now := time.Now()
	entries.put(model.Entry{ID: entryID, Title: "v1", TypeID: typ.ID, UpdatedAt: now}, typ)
	rowID := st.seed(outbox.EntryRow{EntryID: entryID, Op: outbox.OpUpsert, EntryUpdatedAt: &now, Status: outbox.StatusPending, CreatedAt: now})

	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rows[rowID].Status != outbox.StatusPending {
		t.Fatalf("row status = %v, want pending (retry scheduled)", st.rows[rowID].Status)
	}
	if len(st.retried) != 1 {
		t.Fatalf("expected one retry, got %v", st.retried)
	}
}

// errTransient is a retryable, unclassified engine error (classify's
// default bucket is transient/retryable).
type errTransient struct{}

func (errTransient) Error() string { return "transient engine failure" }
