package render

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"storyreel/internal/domain"
)

// Uploader is the remote asset store the cache fronts. Upload pushes bytes
// and returns a time-limited URL; Probe is a cheap existence check for a URL
// handed out earlier.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
	Probe(ctx context.Context, remoteURL string) (bool, error)
}

// AssetLoader produces the bytes for a fingerprint on demand, so a cache hit
// never touches the local file.
type AssetLoader func(ctx context.Context) ([]byte, error)

// AssetCache resolves local asset fingerprints to remote URLs, re-uploading
// lazily when an entry ages out and its URL no longer answers. Entries live
// inside the project document, so commits share the project lock; concurrent
// resolves of one fingerprint collapse to a single upload.
type AssetCache struct {
	uploader     Uploader
	states       *StateStore
	retry        RetryPolicy
	freshFor     time.Duration
	probeTimeout time.Duration
	logger       zerolog.Logger

	group singleflight.Group
}

// CacheConfig carries the cache's tunables. The freshness window is an
// empirical bound well under the providers' observed ~24h URL lifetime.
type CacheConfig struct {
	FreshFor     time.Duration
	ProbeTimeout time.Duration
}

// NewAssetCache builds a cache over the given remote store and state store.
func NewAssetCache(uploader Uploader, states *StateStore, retry RetryPolicy, cfg CacheConfig, logger zerolog.Logger) *AssetCache {
	if cfg.FreshFor <= 0 {
		cfg.FreshFor = 12 * time.Hour
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &AssetCache{
		uploader:     uploader,
		states:       states,
		retry:        retry,
		freshFor:     cfg.FreshFor,
		probeTimeout: cfg.ProbeTimeout,
		logger:       logger,
	}
}

// Resolve returns a remote URL for the fingerprint, uploading the bytes if no
// trusted entry exists. Concurrent calls for the same (project, key) share
// one resolution.
func (c *AssetCache) Resolve(ctx context.Context, projectID, key string, load AssetLoader) (string, error) {
	v, err, _ := c.group.Do(projectID+"\x00"+key, func() (any, error) {
		return c.resolve(ctx, projectID, key, load)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *AssetCache) resolve(ctx context.Context, projectID, key string, load AssetLoader) (string, error) {
	state, err := c.states.Read(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("cache: read project: %w", err)
	}

	now := time.Now()
	entry, ok := state.CacheEntryFor(key)
	if ok && now.Sub(entry.LastValidatedAt) < c.freshFor {
		return entry.RemoteURL, nil
	}

	if ok {
		if c.probe(ctx, entry.RemoteURL) {
			if err := c.states.WithProjectLock(ctx, projectID, func(st *domain.ProjectState) error {
				st.TouchCacheEntry(key, now)
				return nil
			}); err != nil {
				return "", err
			}
			c.logger.Debug().Str("key", key).Msg("cache: revalidated")
			return entry.RemoteURL, nil
		}
		c.logger.Info().Str("key", key).Msg("cache: remote url stale, re-uploading")
	}

	data, err := load(ctx)
	if err != nil {
		return "", fmt.Errorf("cache: load asset %s: %w", key, err)
	}

	remoteURL, err := Retry(ctx, c.retry, "asset upload", func(ctx context.Context) (string, error) {
		return c.uploader.Upload(ctx, key, data)
	})
	if err != nil {
		return "", fmt.Errorf("cache: upload asset %s: %w", key, err)
	}

	if err := c.states.WithProjectLock(ctx, projectID, func(st *domain.ProjectState) error {
		st.PutCacheEntry(key, remoteURL, time.Now())
		return nil
	}); err != nil {
		return "", err
	}
	c.logger.Info().Str("key", key).Str("url", remoteURL).Msg("cache: uploaded")
	return remoteURL, nil
}

// probe asks the remote store whether the URL still answers. Probe failures
// of any kind count as a miss; the caller falls back to re-uploading.
func (c *AssetCache) probe(ctx context.Context, remoteURL string) bool {
	exists, err := Retry(ctx, c.retry, "asset probe", func(ctx context.Context) (bool, error) {
		probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
		return c.uploader.Probe(probeCtx, remoteURL)
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache: probe failed")
		return false
	}
	return exists
}
