package render

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

// memPersistence is an in-memory ProjectPersistence that round-trips the
// document through JSON so tests exercise the same copy semantics as the
// database-backed repo.
type memPersistence struct {
	mu    sync.Mutex
	docs  map[string][]byte
	loads atomic.Int64
	saves atomic.Int64

	failSave func(projectID string) error
}

func newMemPersistence() *memPersistence {
	return &memPersistence{docs: make(map[string][]byte)}
}

func (m *memPersistence) seed(state *domain.ProjectState) {
	raw, err := json.Marshal(state)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.docs[state.ProjectID] = raw
	m.mu.Unlock()
}

func (m *memPersistence) Load(ctx context.Context, projectID string) (*domain.ProjectState, error) {
	m.loads.Add(1)
	m.mu.Lock()
	raw, ok := m.docs[projectID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var state domain.ProjectState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *memPersistence) Save(ctx context.Context, projectID string, state *domain.ProjectState) error {
	if m.failSave != nil {
		if err := m.failSave(projectID); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.saves.Add(1)
	m.mu.Lock()
	m.docs[projectID] = raw
	m.mu.Unlock()
	return nil
}

// fakeUploader counts uploads and probes and lets tests script probe answers.
type fakeUploader struct {
	mu       sync.Mutex
	uploads  int
	probes   int
	probeOK  bool
	probeErr error
	uploadFn func(key string) (string, error)
}

func (f *fakeUploader) Upload(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	f.uploads++
	n := f.uploads
	fn := f.uploadFn
	f.mu.Unlock()
	if fn != nil {
		return fn(key)
	}
	return fmt.Sprintf("https://cdn.test/%s/v%d", key, n), nil
}

func (f *fakeUploader) Probe(ctx context.Context, remoteURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probeErr != nil {
		return false, f.probeErr
	}
	return f.probeOK, nil
}

func (f *fakeUploader) counts() (uploads, probes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.probes
}

// fakeSubmitter scripts generation outcomes. gate, when set, must be closed
// by the test before any Submit returns, letting tests hold jobs in flight.
type fakeSubmitter struct {
	mu        sync.Mutex
	calls     int
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
	gate      chan struct{}
	failFn    func(job Job) error
	costCents int64
}

func (f *fakeSubmitter) Submit(ctx context.Context, job Job, resolved map[string]string) (Result, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	gate := f.gate
	failFn := f.failFn
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if failFn != nil {
		if err := failFn(job); err != nil {
			return Result{}, err
		}
	}
	cost := f.costCents
	if cost == 0 {
		cost = 5
	}
	return Result{AssetURL: "https://cdn.test/render/" + job.TargetID(), CostCents: cost}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: testLogger()}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
