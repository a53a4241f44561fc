package render

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/domain"
)

func TestWithProjectLockSerializesWriters(t *testing.T) {
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("p1", "demo", time.Now()))
	store := NewStateStore(mem, testLogger())

	const writers = 20
	const perWriter = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				err := store.WithProjectLock(context.Background(), "p1", func(st *domain.ProjectState) error {
					st.Costs.Add("image_render", 1)
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	st, err := store.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), st.Costs.TotalCents, "no increment may be lost")
}

func TestWithProjectLockNoLostUpdateAcrossTargets(t *testing.T) {
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("p1", "demo", time.Now()))
	store := NewStateStore(mem, testLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = store.WithProjectLock(context.Background(), "p1", func(st *domain.ProjectState) error {
			st.PutRender(domain.RenderResult{TargetID: "shot_01", Kind: "image_render", Status: domain.RenderStatusDone, AssetURL: "u1"})
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		_ = store.WithProjectLock(context.Background(), "p1", func(st *domain.ProjectState) error {
			st.Costs.Add("video_render", 12)
			return nil
		})
	}()
	wg.Wait()

	st, err := store.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, st.Renders, "shot_01")
	assert.Equal(t, int64(12), st.Costs.TotalCents)
}

func TestWithProjectLockIndependentProjects(t *testing.T) {
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("a", "a", time.Now()))
	mem.seed(domain.NewProjectState("b", "b", time.Now()))
	store := NewStateStore(mem, testLogger())

	holdingA := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = store.WithProjectLock(context.Background(), "a", func(st *domain.ProjectState) error {
			close(holdingA)
			<-releaseA
			return nil
		})
	}()
	<-holdingA

	done := make(chan struct{})
	go func() {
		_ = store.WithProjectLock(context.Background(), "b", func(st *domain.ProjectState) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("project b blocked behind project a's lock")
	}
	close(releaseA)
}

func TestWithProjectLockSaveFailurePropagatesAndReleases(t *testing.T) {
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("p1", "demo", time.Now()))
	saveErr := errors.New("disk full")
	fail := true
	mem.failSave = func(string) error {
		if fail {
			return saveErr
		}
		return nil
	}
	store := NewStateStore(mem, testLogger())

	err := store.WithProjectLock(context.Background(), "p1", func(st *domain.ProjectState) error {
		st.Costs.Add("image_render", 99)
		return nil
	})
	require.ErrorIs(t, err, saveErr)

	// Persisted state is untouched and the lock is free for the next writer.
	st, err := store.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, st.Costs.TotalCents)

	fail = false
	require.NoError(t, store.WithProjectLock(context.Background(), "p1", func(st *domain.ProjectState) error {
		st.Costs.Add("image_render", 1)
		return nil
	}))
}

func TestWithProjectLockUnknownProject(t *testing.T) {
	store := NewStateStore(newMemPersistence(), testLogger())
	err := store.WithProjectLock(context.Background(), "missing", func(st *domain.ProjectState) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotFound)
}
