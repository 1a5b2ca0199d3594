package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/offworker/internal/record"
)

func TestEventQueue_FIFOOrder(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Kind: record.EventInstall})
	q.Enqueue(Event{Kind: record.EventPush, Tag: "a"})
	q.Enqueue(Event{Kind: record.EventPush, Tag: "b"})

	kinds := []record.EventKind{}
	tags := []string{}
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind)
		tags = append(tags, ev.Tag)
	}
	assert.Equal(t, []record.EventKind{record.EventInstall, record.EventPush, record.EventPush}, kinds)
	assert.Equal(t, []string{"", "a", "b"}, tags)
}

func TestEventQueue_TryDequeueEmpty(t *testing.T) {
	q := newEventQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestEventQueue_EnqueueAfterCloseFails(t *testing.T) {
	q := newEventQueue()
	require.True(t, q.Enqueue(Event{Kind: record.EventPush}))
	q.Close()

	assert.False(t, q.Enqueue(Event{Kind: record.EventPush}))

	// What was queued before close is still drainable.
	_, ok := q.TryDequeue()
	assert.True(t, ok)
	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_CloseIsIdempotent(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()
}

func TestEventQueue_WaitSignalsOnEnqueue(t *testing.T) {
	q := newEventQueue()

	select {
	case <-q.Wait():
		t.Fatal("signal fired on empty open queue")
	default:
	}

	q.Enqueue(Event{Kind: record.EventSync})
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}
}

func TestEventQueue_WaitUnblocksOnClose(t *testing.T) {
	q := newEventQueue()
	q.Close()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("closed queue must wake waiters")
	}
}
