package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenhq/offworker/internal/record"
)

// CreateBucket inserts a bucket record if it does not already exist.
// Idempotent: re-creating an existing bucket is silently ignored, which
// makes install safe to retry after a partial failure.
func (s *Store) CreateBucket(ctx context.Context, name string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buckets (name, current, created_seq)
		VALUES (?, 0, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, seq)
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// SetCurrentBucket marks the named bucket as current and clears the flag
// on every other bucket, in one transaction. The bucket must exist.
func (s *Store) SetCurrentBucket(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set current bucket: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `UPDATE buckets SET current = 0 WHERE current = 1`); err != nil {
		return fmt.Errorf("set current bucket: clear: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE buckets SET current = 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("set current bucket: mark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set current bucket: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set current bucket: bucket %q does not exist", name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set current bucket: commit: %w", err)
	}
	return nil
}

// DeleteBucketsExcept removes every bucket whose name differs from keep,
// cascading to their entries. Returns the names of deleted buckets.
func (s *Store) DeleteBucketsExcept(ctx context.Context, keep string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM buckets WHERE name != ?`, keep)
	if err != nil {
		return nil, fmt.Errorf("delete buckets: list: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("delete buckets: scan: %w", err)
		}
		stale = append(stale, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete buckets: iterate: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE name != ?`, keep); err != nil {
		return nil, fmt.Errorf("delete buckets: %w", err)
	}
	return stale, nil
}

// PutEntry upserts a URL → response record into a bucket.
// Last-write-wins: a collision on (bucket, url) overwrites the prior entry.
func (s *Store) PutEntry(ctx context.Context, entry record.CachedResponse) error {
	headersJSON, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("put entry: marshal headers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (bucket, url, status, headers, body, content_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, url) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			content_hash = excluded.content_hash,
			seq = excluded.seq
	`,
		entry.Bucket,
		entry.URL,
		entry.Status,
		string(headersJSON),
		entry.Body,
		entry.ContentHash,
		entry.Seq,
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// EnqueueTask inserts a pending task into the background-sync queue.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) EnqueueTask(ctx context.Context, task record.PendingTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_tasks (id, title, payload, due_at, created_seq, synced_at)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING
	`,
		task.ID,
		task.Title,
		task.Payload,
		task.DueAt,
		task.CreatedSeq,
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// MarkTaskSynced records the wall-clock time a task was pushed upstream.
func (s *Store) MarkTaskSynced(ctx context.Context, id string, syncedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_tasks SET synced_at = ? WHERE id = ? AND synced_at = 0
	`, syncedAt, id)
	if err != nil {
		return fmt.Errorf("mark task synced: %w", err)
	}
	return nil
}

// AppendEvent appends a handled worker event to the durable log.
// Uses ON CONFLICT DO NOTHING so replaying a handled event is a no-op.
func (s *Store) AppendEvent(ctx context.Context, ev record.Event) error {
	detail := "{}"
	if len(ev.Detail) > 0 {
		b, err := record.MarshalCanonical(ev.Detail)
		if err != nil {
			return fmt.Errorf("append event: marshal detail: %w", err)
		}
		detail = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (seq, id, kind, detail)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.Seq,
		ev.ID,
		string(ev.Kind),
		detail,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
