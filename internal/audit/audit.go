package audit

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action classifies a session-lifecycle audit entry.
type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
	ActionEvict Action = "evict"
)

// Entry is one connection-lifecycle record. Message payloads are never
// recorded here.
type Entry struct {
	ConnID   string
	Room     string
	Username string
	Action   Action
	At       time.Time
}

// maxFlushRetries bounds how often a failed batch is requeued before
// it is dropped; audit is best-effort and must not grow without bound
// behind a sick database.
const maxFlushRetries = 3

// Recorder buffers session entries in memory and flushes them to the
// session_audit table in one transaction per tick. A nil *Recorder is
// a valid no-op recorder, so callers never branch on whether audit is
// configured.
type Recorder struct {
	db       *sql.DB
	mu       sync.Mutex
	buf      []Entry
	failures int
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record queues one entry for the next flush.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	r.mu.Lock()
	r.buf = append(r.buf, e)
	r.mu.Unlock()
}

// Run flushes the buffer every interval until ctx is cancelled, with a
// final flush on shutdown.
func (r *Recorder) Run(ctx context.Context, interval time.Duration) {
	if r == nil {
		return
	}
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				r.flushOnce(context.Background())
				return
			case <-tk.C:
				r.flushOnce(ctx)
			}
		}
	}()
}

func (r *Recorder) flushOnce(ctx context.Context) {
	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Error("audit.tx_begin", zap.Error(err))
		r.requeue(batch)
		return
	}
	defer tx.Rollback()

	const ins = `
	INSERT INTO session_audit (conn_id, room, username, action, at)
	     VALUES ($1, $2, $3, $4, $5)`

	for _, e := range batch {
		if _, err := tx.ExecContext(ctx, ins, e.ConnID, e.Room, e.Username, string(e.Action), e.At); err != nil {
			zap.L().Error("audit.insert", zap.String("conn_id", e.ConnID), zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		zap.L().Error("audit.commit", zap.Error(err))
		r.requeue(batch)
		return
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
}

// requeue puts a failed batch back in front of whatever arrived since.
// After maxFlushRetries consecutive failures the batch is dropped, so a
// poison row or a dead database cannot grow the buffer forever.
func (r *Recorder) requeue(batch []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures++
	if r.failures > maxFlushRetries {
		zap.L().Error("audit.batch_dropped",
			zap.Int("entries", len(batch)), zap.Int("attempts", r.failures))
		r.failures = 0
		return
	}
	r.buf = append(batch, r.buf...)
}
