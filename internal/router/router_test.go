package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
	"github.com/lumenhq/offworker/internal/testutil"
)

const testBucket = "task-manager-v1"

func newTestRouter(t *testing.T, originURL string) (*Router, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateBucket(ctx, testBucket, 1))
	require.NoError(t, s.SetCurrentBucket(ctx, testBucket))

	origin, err := url.Parse(originURL)
	require.NoError(t, err)

	return New(s, nil, origin, "/offline.html", testutil.NewDeterministicClock(), nil), s
}

func putEntry(t *testing.T, s *store.Store, url, contentType string, body []byte) {
	t.Helper()
	header := http.Header{"Content-Type": []string{contentType}}
	require.NoError(t, s.PutEntry(context.Background(), record.CachedResponse{
		Bucket:      testBucket,
		URL:         url,
		Status:      http.StatusOK,
		Header:      header,
		Body:        body,
		ContentHash: record.ResponseHash(http.StatusOK, header, body),
		Seq:         1,
	}))
}

// deadOrigin returns a URL nothing listens on, so fetches fail at the
// transport level.
func deadOrigin(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func navRequest(target string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	return r
}

func TestNavigation_NetworkFirst(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>live</html>"))
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)
	putEntry(t, s, "/offline.html", "text/html; charset=utf-8", []byte("<html>offline</html>"))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, navRequest("/tasks"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>live</html>", rec.Body.String(), "live response wins even with a cached fallback")
}

func TestNavigation_UpstreamErrorStatusPassesThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)
	putEntry(t, s, "/offline.html", "text/html; charset=utf-8", []byte("<html>offline</html>"))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, navRequest("/tasks"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code,
		"HTTP errors are not offline; only transport failure falls back")
}

func TestNavigation_OfflineFallsBackToCachedDocument(t *testing.T) {
	rt, s := newTestRouter(t, deadOrigin(t))
	putEntry(t, s, "/offline.html", "text/html; charset=utf-8", []byte("<html>offline</html>"))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, navRequest("/tasks"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>offline</html>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestNavigation_InlinePageWhenNothingCached(t *testing.T) {
	rt, _ := newTestRouter(t, deadOrigin(t))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, navRequest("/tasks"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "You are offline")
}

func TestNavigation_PreloadStillServesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("preloaded"))
	}))
	defer upstream.Close()

	rt, _ := newTestRouter(t, upstream.URL)
	rt.EnablePreload()
	require.True(t, rt.PreloadEnabled())

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, navRequest("/tasks"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "preloaded", rec.Body.String())
}

func TestSubresource_CacheHitSkipsUpstream(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)
	putEntry(t, s, "/app.js", "text/javascript", []byte("console.log('cached')"))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('cached')", rec.Body.String())
	assert.Equal(t, "text/javascript", rec.Header().Get("Content-Type"))
	assert.Zero(t, hits, "cache hit must not touch the network")
}

func TestSubresource_MissFetchesAndWritesThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body{}"))
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/styles.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	// The store happens after the response, detached from the request.
	require.Eventually(t, func() bool {
		ok, err := s.HasEntry(context.Background(), testBucket, "/styles.css")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond, "miss should be written through")

	entry, found, err := s.GetEntry(context.Background(), testBucket, "/styles.css")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("body{}"), entry.Body)
	assert.Equal(t, record.ResponseHash(entry.Status, entry.Header, entry.Body), entry.ContentHash)
}

func TestSubresource_NonOKNotCached(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	time.Sleep(50 * time.Millisecond)
	ok, err := s.HasEntry(context.Background(), testBucket, "/missing.js")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubresource_OversizedBodyStreamsUncached(t *testing.T) {
	big := bytes.Repeat([]byte("x"), maxCacheBytes+1024)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(big)
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.bin", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(big), rec.Body.Len(), "body over the cache limit must arrive whole")

	time.Sleep(50 * time.Millisecond)
	ok, err := s.HasEntry(context.Background(), testBucket, "/export.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubresource_FailedImageGetsPlaceholder(t *testing.T) {
	rt, _ := newTestRouter(t, deadOrigin(t))

	r := httptest.NewRequest(http.MethodGet, "/photos/cat.png", nil)
	r.Header.Set("Sec-Fetch-Dest", "image")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestSubresource_FailedFetchPropagates(t *testing.T) {
	rt, _ := newTestRouter(t, deadOrigin(t))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSubresource_QueryStringPartOfKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page=" + r.URL.Query().Get("page")))
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)
	putEntry(t, s, "/api/list?page=1", "text/plain", []byte("page=cached")) // exact match only

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/list?page=2", nil))
	assert.Equal(t, "page=2", rec.Body.String(), "different query is a different entry")

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/list?page=1", nil))
	assert.Equal(t, "page=cached", rec.Body.String())
}

func TestSubresource_PostBypassesCache(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	rt, s := newTestRouter(t, upstream.URL)
	putEntry(t, s, "/api/tasks", "application/json", []byte(`{"cached":true}`))

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks", nil))

	assert.Equal(t, http.StatusCreated, rec.Code, "writes always reach the upstream")
}
