package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/domain"
)

func newCacheFixture(t *testing.T, up *fakeUploader, cfg CacheConfig) (*AssetCache, *StateStore) {
	t.Helper()
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("p1", "demo", time.Now()))
	states := NewStateStore(mem, testLogger())
	return NewAssetCache(up, states, fastRetry(), cfg, testLogger()), states
}

func loadBytes(b []byte) AssetLoader {
	return func(context.Context) ([]byte, error) { return b, nil }
}

func TestResolveUploadsOnce(t *testing.T) {
	up := &fakeUploader{}
	cache, _ := newCacheFixture(t, up, CacheConfig{FreshFor: time.Hour})

	const callers = 10
	urls := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url, err := cache.Resolve(context.Background(), "p1", "audio-track", loadBytes([]byte("pcm")))
			if err != nil {
				t.Error(err)
				return
			}
			urls[i] = url
		}(i)
	}
	wg.Wait()

	uploads, _ := up.counts()
	assert.Equal(t, 1, uploads, "concurrent resolves of one key collapse to a single upload")
	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}
}

func TestResolveFreshHitSkipsNetwork(t *testing.T) {
	up := &fakeUploader{}
	cache, _ := newCacheFixture(t, up, CacheConfig{FreshFor: time.Hour})

	first, err := cache.Resolve(context.Background(), "p1", "ref-img", loadBytes([]byte("png")))
	require.NoError(t, err)

	second, err := cache.Resolve(context.Background(), "p1", "ref-img", loadBytes([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	uploads, probes := up.counts()
	assert.Equal(t, 1, uploads)
	assert.Zero(t, probes, "a fresh entry answers without any network call")
}

func TestResolveSoftHitRefreshesWindow(t *testing.T) {
	up := &fakeUploader{probeOK: true}
	cache, states := newCacheFixture(t, up, CacheConfig{FreshFor: 50 * time.Millisecond})

	url, err := cache.Resolve(context.Background(), "p1", "still", loadBytes([]byte("jpg")))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	again, err := cache.Resolve(context.Background(), "p1", "still", loadBytes([]byte("jpg")))
	require.NoError(t, err)
	assert.Equal(t, url, again, "a URL that still answers is reused")

	uploads, probes := up.counts()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, probes)

	// The probe refreshed the window, so the next resolve is a plain hit.
	st, err := states.Read(context.Background(), "p1")
	require.NoError(t, err)
	entry, ok := st.CacheEntryFor("still")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), entry.LastValidatedAt, time.Second)

	_, err = cache.Resolve(context.Background(), "p1", "still", loadBytes([]byte("jpg")))
	require.NoError(t, err)
	_, probes = up.counts()
	assert.Equal(t, 1, probes)
}

func TestResolveDeadURLReuploads(t *testing.T) {
	up := &fakeUploader{probeOK: false}
	cache, states := newCacheFixture(t, up, CacheConfig{FreshFor: 10 * time.Millisecond})

	first, err := cache.Resolve(context.Background(), "p1", "clip", loadBytes([]byte("mp4")))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	second, err := cache.Resolve(context.Background(), "p1", "clip", loadBytes([]byte("mp4")))
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "a dead URL is replaced, not served")

	uploads, _ := up.counts()
	assert.Equal(t, 2, uploads, "exactly one re-upload")

	st, err := states.Read(context.Background(), "p1")
	require.NoError(t, err)
	entry, ok := st.CacheEntryFor("clip")
	require.True(t, ok)
	assert.Equal(t, second, entry.RemoteURL)
}

func TestResolveUploadFailureSurfaces(t *testing.T) {
	up := &fakeUploader{uploadFn: func(string) (string, error) {
		return "", statusErr{400}
	}}
	cache, _ := newCacheFixture(t, up, CacheConfig{FreshFor: time.Hour})

	_, err := cache.Resolve(context.Background(), "p1", "broken", loadBytes([]byte("x")))
	require.Error(t, err, "the caller sees the failure instead of a stale or missing URL")
}

func TestResolveUnknownProject(t *testing.T) {
	cache, _ := newCacheFixture(t, &fakeUploader{}, CacheConfig{})
	_, err := cache.Resolve(context.Background(), "ghost", "k", loadBytes(nil))
	require.ErrorIs(t, err, domain.ErrNotFound)
}
