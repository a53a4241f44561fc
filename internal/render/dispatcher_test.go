package render

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyreel/internal/domain"
)

type dispatcherFixture struct {
	d      *Dispatcher
	sub    *fakeSubmitter
	up     *fakeUploader
	states *StateStore
	mem    *memPersistence
}

func newDispatcherFixture(t *testing.T, maxConcurrency int) *dispatcherFixture {
	t.Helper()
	mem := newMemPersistence()
	mem.seed(domain.NewProjectState("p1", "demo", time.Now()))
	states := NewStateStore(mem, testLogger())
	up := &fakeUploader{}
	cache := NewAssetCache(up, states, fastRetry(), CacheConfig{FreshFor: time.Hour}, testLogger())
	sub := &fakeSubmitter{}
	d := NewDispatcher(context.Background(), DispatcherConfig{
		MaxConcurrency: maxConcurrency,
		ImageTimeout:   5 * time.Second,
		VideoTimeout:   5 * time.Second,
	}, cache, states, sub, fastRetry(), testLogger())
	return &dispatcherFixture{d: d, sub: sub, up: up, states: states, mem: mem}
}

func shotJob(target string) ImageRender {
	return ImageRender{Project: "p1", Shot: domain.Shot{ID: target, Description: "wide shot"}, Prompt: "a wide shot"}
}

func (f *dispatcherFixture) terminalEvents(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			if ev.State == StateDone || ev.State == StateFailed || ev.State == StateCancelled {
				out = append(out, ev)
			}
		case <-deadline:
			t.Fatalf("saw %d terminal events, want %d", len(out), n)
		}
	}
	return out
}

func TestEnqueueIdempotent(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.sub.gate = make(chan struct{})

	id1, ok := f.d.Enqueue(shotJob("shot_01"))
	require.True(t, ok)
	id2, ok := f.d.Enqueue(shotJob("shot_01"))
	assert.False(t, ok, "same (kind, target) while running is a no-op")
	assert.Equal(t, id1, id2)

	// A different kind for the same target is a distinct job.
	_, ok = f.d.Enqueue(VideoRender{Project: "p1", Shot: domain.Shot{ID: "shot_01"}, Prompt: "animate"})
	assert.True(t, ok)

	close(f.sub.gate)
	f.d.Wait()

	f.sub.mu.Lock()
	calls := f.sub.calls
	f.sub.mu.Unlock()
	assert.Equal(t, 2, calls, "exactly one image and one video submission")
}

func TestConcurrencyBound(t *testing.T) {
	const bound = 6
	f := newDispatcherFixture(t, bound)
	f.sub.gate = make(chan struct{})

	for i := 0; i < 20; i++ {
		_, ok := f.d.Enqueue(shotJob(fmt.Sprintf("shot_%02d", i)))
		require.True(t, ok)
	}

	require.True(t, waitFor(time.Second, func() bool {
		_, running := f.d.Stats()
		return running == bound
	}))
	pending, running := f.d.Stats()
	assert.Equal(t, bound, running)
	assert.Equal(t, 20-bound, pending)

	close(f.sub.gate)
	f.d.Wait()

	assert.LessOrEqual(t, f.sub.maxSeen.Load(), int64(bound), "running jobs never exceed the bound")
	f.sub.mu.Lock()
	assert.Equal(t, 20, f.sub.calls)
	f.sub.mu.Unlock()
}

func TestCompletionAdmitsNext(t *testing.T) {
	f := newDispatcherFixture(t, 2)
	f.sub.gate = make(chan struct{}, 3)
	ch, stop := f.d.Subscribe(32)
	defer stop()

	for _, target := range []string{"shot_a", "shot_b", "shot_c"} {
		_, ok := f.d.Enqueue(shotJob(target))
		require.True(t, ok)
	}

	require.True(t, waitFor(time.Second, func() bool {
		pending, running := f.d.Stats()
		return running == 2 && pending == 1
	}), "A and B admitted, C pending")

	f.sub.gate <- struct{}{} // let one finish

	require.True(t, waitFor(time.Second, func() bool {
		pending, _ := f.d.Stats()
		return pending == 0
	}), "C admitted as soon as a slot frees, without an external trigger")

	f.sub.gate <- struct{}{}
	f.sub.gate <- struct{}{}
	f.d.Wait()

	events := f.terminalEvents(t, ch, 3)
	for _, ev := range events {
		assert.Equal(t, StateDone, ev.State)
	}

	st, err := f.states.Read(context.Background(), "p1")
	require.NoError(t, err)
	for _, target := range []string{"shot_a", "shot_b", "shot_c"} {
		res, ok := st.Renders[target]
		require.True(t, ok, "result for %s committed", target)
		assert.Equal(t, domain.RenderStatusDone, res.Status)
	}
	assert.Equal(t, int64(15), st.Costs.TotalCents, "every commit carries its cost")
}

func TestCancelAllDropsPendingKeepsRunning(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.sub.gate = make(chan struct{})
	ch, stop := f.d.Subscribe(32)
	defer stop()

	runningID, ok := f.d.Enqueue(shotJob("running_shot"))
	require.True(t, ok)
	pendingID, ok := f.d.Enqueue(shotJob("pending_shot"))
	require.True(t, ok)

	require.True(t, waitFor(time.Second, func() bool {
		_, running := f.d.Stats()
		return running == 1
	}))

	f.d.CancelAll()
	close(f.sub.gate)
	f.d.Wait()

	events := f.terminalEvents(t, ch, 2)
	byID := map[string]Event{}
	for _, ev := range events {
		byID[ev.JobID] = ev
	}
	assert.Equal(t, StateCancelled, byID[pendingID].State)
	assert.Equal(t, StateDone, byID[runningID].State, "an admitted job runs to completion")

	st, err := f.states.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, st.Renders, "running_shot", "the running job still commits")
	assert.NotContains(t, st.Renders, "pending_shot", "a cancelled job never commits")

	// The drain flag clears on the next enqueue.
	_, ok = f.d.Enqueue(shotJob("after_drain"))
	require.True(t, ok)
	f.d.Wait()
	st, err = f.states.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, st.Renders, "after_drain")
}

func TestPromoteMovesPendingToFront(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.sub.gate = make(chan struct{}, 4)
	ch, stop := f.d.Subscribe(32)
	defer stop()

	_, ok := f.d.Enqueue(shotJob("first"))
	require.True(t, ok)
	require.True(t, waitFor(time.Second, func() bool {
		_, running := f.d.Stats()
		return running == 1
	}))

	f.d.Enqueue(shotJob("second"))
	f.d.Enqueue(shotJob("third"))
	promoted, ok := f.d.Enqueue(shotJob("urgent"))
	require.True(t, ok)
	f.d.Promote(promoted)

	for i := 0; i < 4; i++ {
		f.sub.gate <- struct{}{}
	}
	f.d.Wait()

	var order []string
	for _, ev := range f.terminalEvents(t, ch, 4) {
		order = append(order, ev.TargetID)
	}
	require.Len(t, order, 4)
	assert.Equal(t, "first", order[0])
	assert.Equal(t, "urgent", order[1], "promoted job runs ahead of earlier pending jobs")
}

func TestJobFailureIsIsolated(t *testing.T) {
	f := newDispatcherFixture(t, 2)
	f.sub.failFn = func(job Job) error {
		if job.TargetID() == "doomed" {
			return statusErr{422}
		}
		return nil
	}
	ch, stop := f.d.Subscribe(32)
	defer stop()

	f.d.Enqueue(shotJob("doomed"))
	f.d.Enqueue(shotJob("fine"))
	f.d.Wait()

	byTarget := map[string]Event{}
	for _, ev := range f.terminalEvents(t, ch, 2) {
		byTarget[ev.TargetID] = ev
	}
	assert.Equal(t, StateFailed, byTarget["doomed"].State)
	assert.NotEmpty(t, byTarget["doomed"].Error)
	assert.Equal(t, StateDone, byTarget["fine"].State)

	st, err := f.states.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.RenderStatusFailed, st.Renders["doomed"].Status)
	assert.Equal(t, domain.RenderStatusDone, st.Renders["fine"].Status)
}

func TestRetryableFailureExhaustsThenFails(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.sub.failFn = func(Job) error { return statusErr{503} }
	ch, stop := f.d.Subscribe(8)
	defer stop()

	f.d.Enqueue(shotJob("flaky_target"))
	f.d.Wait()

	ev := f.terminalEvents(t, ch, 1)[0]
	assert.Equal(t, StateFailed, ev.State)
	f.sub.mu.Lock()
	assert.Equal(t, 3, f.sub.calls, "generation retried to exhaustion before failing the job")
	f.sub.mu.Unlock()
}

func TestJobWithSourcesResolvesThroughCache(t *testing.T) {
	f := newDispatcherFixture(t, 2)
	src := SourceAsset{Key: "cast-ref", Load: loadBytes([]byte("png"))}

	// Two shots sharing one reference asset upload it once.
	f.d.Enqueue(ImageRender{Project: "p1", Shot: domain.Shot{ID: "s1"}, Prompt: "a", References: []SourceAsset{src}})
	f.d.Enqueue(ImageRender{Project: "p1", Shot: domain.Shot{ID: "s2"}, Prompt: "b", References: []SourceAsset{src}})
	f.d.Wait()

	uploads, _ := f.up.counts()
	assert.Equal(t, 1, uploads)

	st, err := f.states.Read(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, st.Renders, "s1")
	assert.Contains(t, st.Renders, "s2")
	_, ok := st.CacheEntryFor("cast-ref")
	assert.True(t, ok)
}

func TestCommitFailureFailsJobAfterSuccessfulGeneration(t *testing.T) {
	f := newDispatcherFixture(t, 1)
	f.mem.failSave = func(string) error { return fmt.Errorf("connection lost") }
	ch, stop := f.d.Subscribe(8)
	defer stop()

	f.d.Enqueue(shotJob("uncommitted"))
	f.d.Wait()

	ev := f.terminalEvents(t, ch, 1)[0]
	assert.Equal(t, StateFailed, ev.State, "success is never reported without a durable commit")
	assert.Contains(t, ev.Error, "commit")
}
