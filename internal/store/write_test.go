package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/offworker/internal/record"
)

func putTestEntry(t *testing.T, s *Store, bucket, url string) record.CachedResponse {
	t.Helper()
	body := []byte("body of " + url)
	header := http.Header{"Content-Type": {"application/javascript"}}
	entry := record.CachedResponse{
		Bucket:      bucket,
		URL:         url,
		Status:      200,
		Header:      header,
		Body:        body,
		ContentHash: record.ResponseHash(200, header, body),
		Seq:         1,
	}
	require.NoError(t, s.PutEntry(context.Background(), entry))
	return entry
}

func TestPutEntry_RoundTripByteForByte(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "task-manager-v1", 1))
	stored := putTestEntry(t, s, "task-manager-v1", "/app.js")

	got, ok, err := s.GetEntry(ctx, "task-manager-v1", "/app.js")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, stored.Body, got.Body)
	assert.Equal(t, stored.Status, got.Status)
	assert.Equal(t, stored.Header, got.Header)
	// The replay invariant: what comes back hashes to what was stored.
	assert.Equal(t, stored.ContentHash, record.ResponseHash(got.Status, got.Header, got.Body))
}

func TestPutEntry_LastWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBucket(ctx, "task-manager-v1", 1))
	putTestEntry(t, s, "task-manager-v1", "/app.js")

	updated := record.CachedResponse{
		Bucket:      "task-manager-v1",
		URL:         "/app.js",
		Status:      200,
		Header:      http.Header{"Content-Type": {"application/javascript"}},
		Body:        []byte("v2 body"),
		ContentHash: "h2",
		Seq:         2,
	}
	require.NoError(t, s.PutEntry(ctx, updated))

	got, ok, err := s.GetEntry(ctx, "task-manager-v1", "/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2 body"), got.Body)
	assert.Equal(t, int64(2), got.Seq)
}

func TestEnqueueTask_IdempotentAndOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "t2", Title: "second", CreatedSeq: 2}))
	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "t1", Title: "first", CreatedSeq: 1}))
	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "t1", Title: "duplicate", CreatedSeq: 9}))

	tasks, err := s.PendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "first", tasks[0].Title, "duplicate enqueue is ignored")
	assert.Equal(t, "t2", tasks[1].ID)
}

func TestMarkTaskSynced_RemovesFromPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "t1", Title: "task", CreatedSeq: 1}))
	require.NoError(t, s.MarkTaskSynced(ctx, "t1", 1700000000))

	tasks, err := s.PendingTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDueTasks_OnlyDueAndUnsynced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "due", Title: "due", DueAt: 100, CreatedSeq: 1}))
	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "future", Title: "future", DueAt: 900, CreatedSeq: 2}))
	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "noreminder", Title: "none", CreatedSeq: 3}))
	require.NoError(t, s.EnqueueTask(ctx, record.PendingTask{ID: "synced", Title: "synced", DueAt: 50, CreatedSeq: 4}))
	require.NoError(t, s.MarkTaskSynced(ctx, "synced", 1700000000))

	due, err := s.DueTasks(ctx, 500)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestAppendEvent_DeterministicReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []record.Event{
		{ID: "b", Kind: record.EventActivate, Seq: 2},
		{ID: "a", Kind: record.EventInstall, Seq: 1, Detail: map[string]any{"bucket": "task-manager-v1"}},
		{ID: "c", Kind: record.EventPush, Seq: 3, Detail: map[string]any{"tag": "task-notification"}},
	}
	for _, ev := range events {
		require.NoError(t, s.AppendEvent(ctx, ev))
	}
	// Replaying an already-appended event is a no-op.
	require.NoError(t, s.AppendEvent(ctx, events[0]))

	got, err := s.ReadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, record.EventInstall, got[0].Kind)
	assert.Equal(t, record.EventActivate, got[1].Kind)
	assert.Equal(t, record.EventPush, got[2].Kind)
	assert.Equal(t, "task-notification", got[2].Detail["tag"])
}
