package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
)

// maxCacheBytes bounds how much of an upstream response is buffered for
// write-through. Larger responses are streamed to the caller uncached.
const maxCacheBytes = 16 << 20 // 16 MiB

// writeThroughTimeout bounds the detached cache store after the response
// has already been sent.
const writeThroughTimeout = 10 * time.Second

// offlinePage is served when a navigation fails and no offline document
// made it into the cache. Self-contained so it renders with nothing else
// available.
const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline</title>
<style>
body { font-family: system-ui, sans-serif; text-align: center; padding: 4rem 1rem; color: #333; }
h1 { font-size: 1.5rem; }
</style>
</head>
<body>
<h1>You are offline</h1>
<p>Task Manager could not reach the network. Your changes are saved locally and will sync when you reconnect.</p>
</body>
</html>
`

// svgPlaceholder replaces images that could not be fetched. Empty on
// purpose: the box renders blank instead of broken.
const svgPlaceholder = ""

// Clock supplies logical seq values for write-through entries.
// Implemented by worker.Clock.
type Clock interface {
	Next() int64
}

// Router is the gateway handler fronting the upstream origin.
type Router struct {
	store       *store.Store
	client      *http.Client
	origin      *url.URL
	offlinePath string
	clock       Clock
	preload     atomic.Bool
	log         *slog.Logger
}

// New creates a gateway router. client defaults to http.DefaultClient
// and the logger to slog.Default().
func New(
	s *store.Store,
	client *http.Client,
	origin *url.URL,
	offlinePath string,
	clock Clock,
	log *slog.Logger,
) *Router {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:       s,
		client:      client,
		origin:      origin,
		offlinePath: offlinePath,
		clock:       clock,
		log:         log,
	}
}

// EnablePreload turns on navigation preload: the upstream fetch for a
// navigation starts immediately on arrival, concurrent with the
// request's remaining bookkeeping. Called during activation; off until
// then.
func (rt *Router) EnablePreload() {
	if rt.preload.CompareAndSwap(false, true) {
		rt.log.Info("navigation preload enabled")
	}
}

// PreloadEnabled reports whether navigation preload is on.
func (rt *Router) PreloadEnabled() bool {
	return rt.preload.Load()
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isNavigation(r) {
		rt.serveNavigation(w, r)
		return
	}
	rt.serveSubresource(w, r)
}

// isNavigation classifies a request as a page navigation: an explicit
// navigate fetch mode, or a GET that accepts HTML.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return r.Method == http.MethodGet &&
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

// isImage reports whether the request is fetching an image, by fetch
// destination or accept header.
func isImage(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Dest") == "image" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "image/")
}

type fetchResult struct {
	resp *http.Response
	err  error
}

// serveNavigation is network-first: upstream response if reachable,
// cached offline document if not, inline offline page as last resort.
// Upstream HTTP errors (4xx/5xx) pass through untouched; only transport
// failure triggers the fallback chain.
func (rt *Router) serveNavigation(w http.ResponseWriter, r *http.Request) {
	var resp *http.Response
	var err error
	var fallback record.CachedResponse
	var hasFallback bool

	if rt.preload.Load() {
		// Preload: the upstream fetch runs while the offline fallback
		// is resolved, instead of one after the other.
		ch := make(chan fetchResult, 1)
		go func() {
			preResp, preErr := rt.fetchUpstream(r)
			ch <- fetchResult{preResp, preErr}
		}()
		fallback, hasFallback = rt.lookupOffline(r.Context())
		res := <-ch
		resp, err = res.resp, res.err
	} else {
		resp, err = rt.fetchUpstream(r)
		if err != nil {
			fallback, hasFallback = rt.lookupOffline(r.Context())
		}
	}

	if err == nil {
		defer resp.Body.Close()
		copyResponse(w, resp)
		return
	}

	rt.log.Debug("navigation fetch failed, falling back", "path", r.URL.Path, "error", err)

	if hasFallback {
		writeEntry(w, fallback)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(w, offlinePage)
}

// serveSubresource is cache-first: exact-URL match in the current
// bucket, then upstream with write-through, then the degraded responses.
func (rt *Router) serveSubresource(w http.ResponseWriter, r *http.Request) {
	key := r.URL.RequestURI()

	bucket, hasBucket := rt.currentBucket(r.Context())
	if hasBucket && r.Method == http.MethodGet {
		entry, found, err := rt.store.GetEntry(r.Context(), bucket, key)
		if err != nil {
			rt.log.Error("cache lookup failed", "url", key, "error", err)
		} else if found {
			writeEntry(w, entry)
			return
		}
	}

	resp, err := rt.fetchUpstream(r)
	if err != nil {
		if isImage(r) {
			w.Header().Set("Content-Type", "image/svg+xml")
			io.WriteString(w, svgPlaceholder)
			return
		}
		rt.log.Warn("upstream fetch failed", "url", key, "error", err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if !hasBucket || r.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		copyResponse(w, resp)
		return
	}

	// Read one byte past the cache limit so an oversized body is
	// detected rather than clipped.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCacheBytes+1))
	if err != nil {
		rt.log.Warn("upstream body read failed", "url", key, "error", err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)

	if len(body) > maxCacheBytes {
		// Too big to cache: stream the remainder to the caller and skip
		// the write-through.
		if _, err := io.Copy(w, resp.Body); err != nil {
			rt.log.Warn("oversized body stream failed", "url", key, "error", err)
		}
		return
	}

	// Fire and forget: a failed store never fails the response already
	// on the wire.
	entry := record.CachedResponse{
		Bucket:      bucket,
		URL:         key,
		Status:      resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		ContentHash: record.ResponseHash(resp.StatusCode, resp.Header, body),
		Seq:         rt.clock.Next(),
	}
	go rt.writeThrough(entry)
}

func (rt *Router) writeThrough(entry record.CachedResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), writeThroughTimeout)
	defer cancel()
	if err := rt.store.PutEntry(ctx, entry); err != nil {
		rt.log.Warn("write-through failed", "url", entry.URL, "error", err)
	}
}

// fetchUpstream replays the inbound request against the upstream origin.
func (rt *Router) fetchUpstream(r *http.Request) (*http.Response, error) {
	u := rt.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	req, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	return rt.client.Do(req)
}

// currentBucket resolves the active cache bucket, if activation has
// completed. Before activation the gateway is a plain proxy.
func (rt *Router) currentBucket(ctx context.Context) (string, bool) {
	name, ok, err := rt.store.CurrentBucket(ctx)
	if err != nil {
		rt.log.Error("failed to resolve current bucket", "error", err)
		return "", false
	}
	return name, ok
}

func (rt *Router) lookupOffline(ctx context.Context) (record.CachedResponse, bool) {
	bucket, ok := rt.currentBucket(ctx)
	if !ok {
		return record.CachedResponse{}, false
	}
	entry, found, err := rt.store.GetEntry(ctx, bucket, rt.offlinePath)
	if err != nil {
		rt.log.Error("offline document lookup failed", "error", err)
		return record.CachedResponse{}, false
	}
	return entry, found
}

func writeEntry(w http.ResponseWriter, entry record.CachedResponse) {
	copyHeader(w.Header(), entry.Header)
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
}

func copyResponse(w http.ResponseWriter, resp *http.Response) {
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// hop-by-hop headers never cross the gateway.
var hopHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Te":                {},
	"Trailer":           {},
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
