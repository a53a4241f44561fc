package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

// Submitter performs the external generation call for a job whose source
// assets are already resolved to remote URLs. Implementations are opaque
// remote calls; the dispatcher wraps them in the retry policy.
type Submitter interface {
	Submit(ctx context.Context, job Job, resolved map[string]string) (Result, error)
}

// DispatcherConfig bounds the queue. MaxConcurrency is the sole backpressure
// mechanism; the pending list grows without limit.
type DispatcherConfig struct {
	MaxConcurrency int
	ImageTimeout   time.Duration
	VideoTimeout   time.Duration
}

type task struct {
	id    string
	job   Job
	state JobState
}

type jobKey struct {
	kind   Kind
	target string
}

// Dispatcher is the render queue: it admits heterogeneous generation jobs
// under one concurrency bound, resolves their assets through the cache,
// submits them through the retry policy, and commits results through the
// project state lock. Failures stay local to the job.
type Dispatcher struct {
	cfg    DispatcherConfig
	cache  *AssetCache
	states *StateStore
	submit Submitter
	retry  RetryPolicy
	logger zerolog.Logger

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending []*task
	active  map[jobKey]*task
	running int
	drained bool

	subMu sync.Mutex
	subs  map[int]chan Event
	nextS int
}

// NewDispatcher constructs the queue. ctx scopes the lifetime of admitted
// jobs; cancelling it aborts in-flight network calls on shutdown.
func NewDispatcher(ctx context.Context, cfg DispatcherConfig, cache *AssetCache, states *StateStore, submit Submitter, retry RetryPolicy, logger zerolog.Logger) *Dispatcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 2 * time.Minute
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 10 * time.Minute
	}
	return &Dispatcher{
		cfg:    cfg,
		cache:  cache,
		states: states,
		submit: submit,
		retry:  retry,
		logger: logger,
		ctx:    ctx,
		active: make(map[jobKey]*task),
		subs:   make(map[int]chan Event),
	}
}

// Enqueue appends the job unless one with the same (kind, target) is already
// pending or running, in which case it reports the existing job's ID with
// accepted=false. A successful enqueue clears a previous CancelAll.
func (d *Dispatcher) Enqueue(job Job) (jobID string, accepted bool) {
	key := jobKey{kind: job.Kind(), target: job.TargetID()}

	d.mu.Lock()
	if existing, ok := d.active[key]; ok {
		d.mu.Unlock()
		d.logger.Debug().Str("target_id", key.target).Str("kind", string(key.kind)).Msg("dispatcher: duplicate enqueue ignored")
		return existing.id, false
	}
	t := &task{id: uuid.NewString(), job: job, state: StateQueued}
	d.drained = false
	d.pending = append(d.pending, t)
	d.active[key] = t
	d.admitLocked()
	d.mu.Unlock()

	d.logger.Info().Str("job_id", t.id).Str("kind", string(key.kind)).Str("target_id", key.target).Msg("dispatcher: enqueued")
	return t.id, true
}

// CancelAll drops every pending job and blocks new admissions until the next
// successful enqueue. Jobs already running finish normally and still commit,
// so the provider is never abandoned mid-call and incurred cost is recorded.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	d.drained = true
	cancelled := d.pending
	d.pending = nil
	for _, t := range cancelled {
		t.state = StateCancelled
		delete(d.active, jobKey{kind: t.job.Kind(), target: t.job.TargetID()})
	}
	d.mu.Unlock()

	for _, t := range cancelled {
		d.publish(Event{JobID: t.id, Kind: t.job.Kind(), ProjectID: t.job.ProjectID(), TargetID: t.job.TargetID(), State: StateCancelled, At: time.Now()})
	}
	d.logger.Info().Int("cancelled", len(cancelled)).Msg("dispatcher: queue drained")
}

// Promote moves a pending job to the front of the queue. Running or unknown
// jobs are left alone.
func (d *Dispatcher) Promote(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range d.pending {
		if t.id == jobID {
			copy(d.pending[1:i+1], d.pending[:i])
			d.pending[0] = t
			d.logger.Debug().Str("job_id", jobID).Msg("dispatcher: promoted")
			return
		}
	}
}

// Stats reports queue occupancy for status surfaces.
func (d *Dispatcher) Stats() (pending, running int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending), d.running
}

// Wait blocks until every admitted job has finished. Intended for shutdown
// and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// admitLocked pops and starts pending jobs while slots are free. Callers hold
// d.mu.
func (d *Dispatcher) admitLocked() {
	for d.running < d.cfg.MaxConcurrency && len(d.pending) > 0 && !d.drained {
		t := d.pending[0]
		d.pending = d.pending[1:]
		t.state = StateRunning
		d.running++
		d.wg.Add(1)
		go d.run(t)
	}
}

func (d *Dispatcher) run(t *task) {
	defer d.wg.Done()

	d.publish(Event{JobID: t.id, Kind: t.job.Kind(), ProjectID: t.job.ProjectID(), TargetID: t.job.TargetID(), State: StateRunning, At: time.Now()})

	assetURL, err := d.execute(t)

	d.mu.Lock()
	d.running--
	delete(d.active, jobKey{kind: t.job.Kind(), target: t.job.TargetID()})
	if err != nil {
		t.state = StateFailed
	} else {
		t.state = StateDone
	}
	d.admitLocked()
	d.mu.Unlock()

	ev := Event{JobID: t.id, Kind: t.job.Kind(), ProjectID: t.job.ProjectID(), TargetID: t.job.TargetID(), State: t.state, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		d.logger.Error().Err(err).Str("job_id", t.id).Str("target_id", t.job.TargetID()).Msg("dispatcher: job failed")
	} else {
		ev.AssetURL = assetURL
		d.logger.Info().Str("job_id", t.id).Str("target_id", t.job.TargetID()).Str("asset_url", assetURL).Msg("dispatcher: job done")
	}
	d.publish(ev)
}

// execute runs one admitted job end to end: resolve sources, submit, commit.
// The generation call happens outside the project lock; only the commit is
// guarded. A failed commit fails the job even though generation succeeded,
// since an uncommitted result is indistinguishable from a lost one.
func (d *Dispatcher) execute(t *task) (string, error) {
	job := t.job

	resolved := make(map[string]string, len(job.Sources()))
	for _, src := range job.Sources() {
		url, err := d.cache.Resolve(d.ctx, job.ProjectID(), src.Key, src.Load)
		if err != nil {
			d.commitFailure(job, err)
			return "", fmt.Errorf("resolve %s: %w", src.Key, err)
		}
		resolved[src.Key] = url
	}

	genCtx, cancel := context.WithTimeout(d.ctx, d.timeoutFor(job))
	res, err := Retry(genCtx, d.retry, "generate "+string(job.Kind()), func(ctx context.Context) (Result, error) {
		return d.submit.Submit(ctx, job, resolved)
	})
	cancel()
	if err != nil {
		d.commitFailure(job, err)
		return "", fmt.Errorf("generate: %w", err)
	}

	commitErr := d.states.WithProjectLock(d.ctx, job.ProjectID(), func(st *domain.ProjectState) error {
		st.PutRender(domain.RenderResult{
			TargetID:    job.TargetID(),
			Kind:        string(job.Kind()),
			Status:      domain.RenderStatusDone,
			AssetURL:    res.AssetURL,
			CompletedAt: time.Now(),
		})
		st.Costs.Add(string(job.Kind()), res.CostCents)
		st.UpdatedAt = time.Now()
		return nil
	})
	if commitErr != nil {
		return "", fmt.Errorf("commit: %w", commitErr)
	}
	return res.AssetURL, nil
}

// commitFailure best-effort records the failure on the project document so
// the UI can show it after a reload. Errors here are logged, not propagated;
// the job is already failing.
func (d *Dispatcher) commitFailure(job Job, cause error) {
	err := d.states.WithProjectLock(d.ctx, job.ProjectID(), func(st *domain.ProjectState) error {
		st.PutRender(domain.RenderResult{
			TargetID:    job.TargetID(),
			Kind:        string(job.Kind()),
			Status:      domain.RenderStatusFailed,
			Error:       cause.Error(),
			CompletedAt: time.Now(),
		})
		st.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("target_id", job.TargetID()).Msg("dispatcher: failure commit skipped")
	}
}

// timeoutFor picks the per-attempt deadline for the generation call. The
// switch is exhaustive over the job variants.
func (d *Dispatcher) timeoutFor(job Job) time.Duration {
	switch job.(type) {
	case ImageRender, ReferenceGeneration:
		return d.cfg.ImageTimeout
	case VideoRender:
		return d.cfg.VideoTimeout
	default:
		return d.cfg.ImageTimeout
	}
}

// Subscribe registers a listener for job events. The returned channel drops
// events when full rather than blocking the queue; call the cancel func to
// unregister.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	d.subMu.Lock()
	id := d.nextS
	d.nextS++
	d.subs[id] = ch
	d.subMu.Unlock()

	return ch, func() {
		d.subMu.Lock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
		d.subMu.Unlock()
	}
}

func (d *Dispatcher) publish(ev Event) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
