package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

// ProjectPersistence is the durability boundary for project documents. Load
// must return domain.ErrNotFound (possibly wrapped) for unknown projects, and
// Save must be atomic at the single-document granularity.
type ProjectPersistence interface {
	Load(ctx context.Context, projectID string) (*domain.ProjectState, error)
	Save(ctx context.Context, projectID string, state *domain.ProjectState) error
}

// StateStore serializes read-modify-write cycles on project documents with
// one mutex per project. Different projects never block each other.
type StateStore struct {
	persistence ProjectPersistence
	logger      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStateStore wraps a persistence layer with the per-project locking
// discipline.
func NewStateStore(persistence ProjectPersistence, logger zerolog.Logger) *StateStore {
	return &StateStore{
		persistence: persistence,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *StateStore) lockFor(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}

// WithProjectLock loads the latest persisted state, applies fn, and persists
// the result, holding the project's lock for the whole cycle. Every write
// path that can race another must go through here. If fn or the final save
// fails the lock is still released and the persisted state is whatever the
// last successful save left behind.
func (s *StateStore) WithProjectLock(ctx context.Context, projectID string, fn func(*domain.ProjectState) error) error {
	lock := s.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.persistence.Load(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if err := fn(state); err != nil {
		return err
	}
	if err := s.persistence.Save(ctx, projectID, state); err != nil {
		s.logger.Error().Err(err).Str("project_id", projectID).Msg("statestore: save failed")
		return fmt.Errorf("save project %s: %w", projectID, err)
	}
	return nil
}

// Read loads a fresh copy without taking the lock. Callers may use the
// snapshot for display but never as the basis for an unguarded write.
func (s *StateStore) Read(ctx context.Context, projectID string) (*domain.ProjectState, error) {
	return s.persistence.Load(ctx, projectID)
}
