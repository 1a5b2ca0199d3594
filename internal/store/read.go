package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lumenhq/offworker/internal/record"
)

// GetEntry returns the cached response for a URL in a bucket.
// The second return value is false if no entry exists.
func (s *Store) GetEntry(ctx context.Context, bucket, url string) (record.CachedResponse, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bucket, url, status, headers, body, content_hash, seq
		FROM entries
		WHERE bucket = ? AND url = ?
	`, bucket, url)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.CachedResponse{}, false, nil
	}
	if err != nil {
		return record.CachedResponse{}, false, fmt.Errorf("get entry: %w", err)
	}
	return entry, true, nil
}

// HasEntry reports whether a bucket contains an entry for a URL.
func (s *Store) HasEntry(ctx context.Context, bucket, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM entries WHERE bucket = ? AND url = ?
	`, bucket, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has entry: %w", err)
	}
	return true, nil
}

// ListEntries returns all entries in a bucket ordered by URL.
func (s *Store) ListEntries(ctx context.Context, bucket string) ([]record.CachedResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, url, status, headers, body, content_hash, seq
		FROM entries
		WHERE bucket = ?
		ORDER BY url ASC
	`, bucket)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []record.CachedResponse{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: iterate: %w", err)
	}
	return entries, nil
}

// ListBuckets returns all buckets ordered by creation seq.
func (s *Store) ListBuckets(ctx context.Context) ([]record.Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, current, created_seq
		FROM buckets
		ORDER BY created_seq ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	buckets := []record.Bucket{}
	for rows.Next() {
		var b record.Bucket
		var current int
		if err := rows.Scan(&b.Name, &current, &b.CreatedSeq); err != nil {
			return nil, fmt.Errorf("list buckets: scan: %w", err)
		}
		b.Current = current == 1
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: iterate: %w", err)
	}
	return buckets, nil
}

// CurrentBucket returns the name of the bucket marked current.
// The second return value is false if no bucket is current yet
// (worker installed but not activated).
func (s *Store) CurrentBucket(ctx context.Context) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM buckets WHERE current = 1
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("current bucket: %w", err)
	}
	return name, true, nil
}

// PendingTasks returns unsynced tasks in creation order.
func (s *Store) PendingTasks(ctx context.Context) ([]record.PendingTask, error) {
	return s.queryTasks(ctx, `
		SELECT id, title, payload, due_at, created_seq, synced_at
		FROM pending_tasks
		WHERE synced_at = 0
		ORDER BY created_seq ASC, id COLLATE BINARY ASC
	`)
}

// DueTasks returns unsynced tasks whose due time has passed.
func (s *Store) DueTasks(ctx context.Context, now int64) ([]record.PendingTask, error) {
	return s.queryTasks(ctx, `
		SELECT id, title, payload, due_at, created_seq, synced_at
		FROM pending_tasks
		WHERE synced_at = 0 AND due_at > 0 AND due_at <= ?
		ORDER BY due_at ASC, id COLLATE BINARY ASC
	`, now)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]record.PendingTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []record.PendingTask{}
	for rows.Next() {
		var t record.PendingTask
		if err := rows.Scan(&t.ID, &t.Title, &t.Payload, &t.DueAt, &t.CreatedSeq, &t.SyncedAt); err != nil {
			return nil, fmt.Errorf("query tasks: scan: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tasks: iterate: %w", err)
	}
	return tasks, nil
}

// LastSeq returns the highest logical clock value in the event log, or 0
// when the log is empty. Used to resume the clock past everything already
// handled.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadEvents returns the full event log with deterministic ordering:
// ORDER BY seq ASC, id ASC COLLATE BINARY.
func (s *Store) ReadEvents(ctx context.Context) ([]record.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, detail
		FROM events
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	events := []record.Event{}
	for rows.Next() {
		var ev record.Event
		var kind, detail string
		if err := rows.Scan(&ev.Seq, &ev.ID, &kind, &detail); err != nil {
			return nil, fmt.Errorf("read events: scan: %w", err)
		}
		ev.Kind = record.EventKind(kind)
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
				return nil, fmt.Errorf("read events: unmarshal detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: iterate: %w", err)
	}
	return events, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (record.CachedResponse, error) {
	var entry record.CachedResponse
	var headersJSON string
	if err := sc.Scan(
		&entry.Bucket,
		&entry.URL,
		&entry.Status,
		&headersJSON,
		&entry.Body,
		&entry.ContentHash,
		&entry.Seq,
	); err != nil {
		return record.CachedResponse{}, err
	}

	entry.Header = http.Header{}
	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &entry.Header); err != nil {
			return record.CachedResponse{}, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return entry, nil
}
