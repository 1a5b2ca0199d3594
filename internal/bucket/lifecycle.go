package bucket

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lumenhq/offworker/internal/record"
	"github.com/lumenhq/offworker/internal/store"
)

// maxAssetBytes bounds how much of an asset response is read into the
// cache. Static shell assets are small; anything larger is a
// misconfigured manifest entry.
const maxAssetBytes = 16 << 20 // 16 MiB

// Claimer lets activation take control of open page clients.
// Implemented by clients.Registry.
type Claimer interface {
	ClaimAll()
}

// PreloadEnabler lets activation turn on navigation preload.
// Implemented by router.Router.
type PreloadEnabler interface {
	EnablePreload()
}

// Clock supplies logical seq values for stored entries.
// Implemented by worker.Clock.
type Clock interface {
	Next() int64
}

// Manager implements the cache lifecycle: install and activate.
type Manager struct {
	store       *store.Store
	client      *http.Client
	origin      *url.URL
	version     string
	assets      []string
	offlinePath string
	claimer     Claimer
	preload     PreloadEnabler
	clock       Clock
	log         *slog.Logger
}

// New creates a lifecycle manager. claimer and preload may be nil (no
// clients to claim, no preload support); client defaults to
// http.DefaultClient and the logger to slog.Default().
func New(
	s *store.Store,
	client *http.Client,
	origin *url.URL,
	version string,
	assets []string,
	offlinePath string,
	claimer Claimer,
	preload PreloadEnabler,
	clock Clock,
	log *slog.Logger,
) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:       s,
		client:      client,
		origin:      origin,
		version:     version,
		assets:      assets,
		offlinePath: offlinePath,
		claimer:     claimer,
		preload:     preload,
		clock:       clock,
		log:         log,
	}
}

// Version returns the name of the bucket this manager maintains.
func (m *Manager) Version() string {
	return m.version
}

// Install opens (creating if absent) the bucket named by the current
// version and attempts to add the entire static manifest. A failed fetch
// or store of any asset is logged and the remaining assets are still
// attempted; install never fails outright. If install runs while offline,
// the bucket ends up empty or partial and activation re-verifies the
// offline document as a second chance.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.store.CreateBucket(ctx, m.version, m.clock.Next()); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	var failed int
	for _, path := range m.assets {
		if err := m.addAsset(ctx, path); err != nil {
			failed++
			m.log.Warn("failed to cache asset during install", "path", path, "error", err)
		}
	}
	if failed > 0 {
		m.log.Warn("install completed with partial cache",
			"bucket", m.version,
			"failed", failed,
			"total", len(m.assets),
		)
	} else {
		m.log.Info("install populated cache", "bucket", m.version, "assets", len(m.assets))
	}
	return nil
}

// Activate makes this manager's bucket the single current one:
//  1. Enable navigation preload if supported (best-effort).
//  2. Delete every bucket whose name differs from the current version.
//  3. Re-check the offline document; re-add just it if missing
//     (best-effort).
//  4. Mark the bucket current and claim all open page clients.
//
// Deletion happens-before claiming, so no page is governed by a worker
// while stale and current caches both linger.
func (m *Manager) Activate(ctx context.Context) error {
	if m.preload != nil {
		m.preload.EnablePreload()
	}

	stale, err := m.store.DeleteBucketsExcept(ctx, m.version)
	if err != nil {
		return fmt.Errorf("activate: delete stale buckets: %w", err)
	}
	if len(stale) > 0 {
		m.log.Info("deleted stale cache buckets", "buckets", stale)
	}

	ok, err := m.store.HasEntry(ctx, m.version, m.offlinePath)
	if err != nil {
		return fmt.Errorf("activate: check offline document: %w", err)
	}
	if !ok {
		if err := m.addAsset(ctx, m.offlinePath); err != nil {
			m.log.Warn("failed to re-add offline document", "path", m.offlinePath, "error", err)
		} else {
			m.log.Info("re-added offline document", "path", m.offlinePath)
		}
	}

	if err := m.store.SetCurrentBucket(ctx, m.version); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	if m.claimer != nil {
		m.claimer.ClaimAll()
	}
	return nil
}

// addAsset fetches one manifest path from the upstream origin and stores
// it in the bucket.
func (m *Manager) addAsset(ctx context.Context, path string) error {
	u := m.origin.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	entry := record.CachedResponse{
		Bucket:      m.version,
		URL:         path,
		Status:      resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		ContentHash: record.ResponseHash(resp.StatusCode, resp.Header, body),
		Seq:         m.clock.Next(),
	}
	if err := m.store.PutEntry(ctx, entry); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
