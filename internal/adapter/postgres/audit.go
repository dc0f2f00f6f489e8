package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidukas/conductor/internal/port/auditlog"
)

const auditQueueSize = 256

// Archive implements auditlog.Sink with an append-only PostgreSQL table.
// Record enqueues to a background writer and never blocks, so a slow
// database cannot stall a caller holding an orchestration lock. Entries
// are dropped (and counted) when the queue is full.
type Archive struct {
	pool         *pgxpool.Pool
	writeTimeout time.Duration

	queue   chan auditlog.Entry
	done    chan struct{}
	dropped atomic.Int64
}

// NewArchive creates an Archive backed by the given connection pool and
// starts its writer goroutine. Call Close to drain and stop it.
func NewArchive(pool *pgxpool.Pool) *Archive {
	a := &Archive{
		pool:         pool,
		writeTimeout: 5 * time.Second,
		queue:        make(chan auditlog.Entry, auditQueueSize),
		done:         make(chan struct{}),
	}
	go a.writeLoop()
	return a
}

// Record enqueues one audit entry without blocking.
func (a *Archive) Record(_ context.Context, e auditlog.Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case a.queue <- e:
	default:
		a.dropped.Add(1)
		slog.Warn("audit queue full, entry dropped", "actor", e.Actor, "action", e.Action)
	}
	return nil
}

// Dropped reports entries discarded because the queue was full.
func (a *Archive) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting entries, drains the queue, and waits for the
// writer to finish.
func (a *Archive) Close() {
	close(a.queue)
	<-a.done
}

func (a *Archive) writeLoop() {
	defer close(a.done)
	for e := range a.queue {
		if err := a.insert(e); err != nil {
			slog.Warn("audit write failed", "actor", e.Actor, "action", e.Action, "error", err)
		}
	}
}

func (a *Archive) insert(e auditlog.Entry) error {
	var contextJSON []byte
	if e.Context != nil {
		var err error
		contextJSON, err = json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("marshal audit context: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	_, err := a.pool.Exec(ctx,
		`INSERT INTO audit_log (actor, action, decision, reasoning, context, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Actor, e.Action, e.Decision, e.Reasoning, contextJSON, e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByActor returns the most recent entries recorded for an actor,
// newest first.
func (a *Archive) ListByActor(ctx context.Context, actor string, limit int) ([]auditlog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.pool.Query(ctx,
		`SELECT actor, action, decision, reasoning, context, occurred_at
		 FROM audit_log WHERE actor = $1
		 ORDER BY occurred_at DESC LIMIT $2`, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit by actor: %w", err)
	}
	defer rows.Close()

	var result []auditlog.Entry
	for rows.Next() {
		var e auditlog.Entry
		var contextJSON []byte
		if err := rows.Scan(&e.Actor, &e.Action, &e.Decision, &e.Reasoning, &contextJSON, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, fmt.Errorf("unmarshal audit context: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
