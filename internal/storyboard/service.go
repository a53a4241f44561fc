package storyboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/render"
)

// Service generates storyboards for projects. Plan generation runs outside
// the project lock; only applying the result happens under it.
type Service struct {
	writer Writer
	store  *render.StateStore
	logger zerolog.Logger
}

func NewService(writer Writer, store *render.StateStore, logger zerolog.Logger) *Service {
	return &Service{writer: writer, store: store, logger: logger}
}

// Generate plans a storyboard from the project's audio analysis and commits
// it, replacing any previous cast, scenes and shots. Committed renders are
// kept; stale ones age out as their shots disappear from the board.
func (s *Service) Generate(ctx context.Context, projectID, notes string) (*domain.ProjectState, error) {
	state, err := s.store.Read(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if state.Audio == nil {
		return nil, fmt.Errorf("project %s: %w: no analyzed audio", projectID, domain.ErrInvalidPayload)
	}

	plan, err := s.writer.Plan(ctx, PlanRequest{
		Title:  state.Title,
		Locale: state.Locale,
		Audio:  *state.Audio,
		Notes:  notes,
	})
	if err != nil {
		return nil, fmt.Errorf("plan storyboard: %w", err)
	}

	var committed *domain.ProjectState
	err = s.store.WithProjectLock(ctx, projectID, func(st *domain.ProjectState) error {
		ApplyPlan(st, plan, time.Now().UTC())
		committed = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("project_id", projectID).
		Str("writer", plan.Provider).
		Int("scenes", len(committed.Scenes)).
		Int("shots", len(committed.Shots)).
		Msg("storyboard: generated")
	return committed, nil
}

// ApplyPlan writes a plan into the project document, assigning fresh IDs and
// resolving planned cast names to members.
func ApplyPlan(state *domain.ProjectState, plan *Plan, now time.Time) {
	castByName := make(map[string]string, len(plan.Cast))
	cast := make([]domain.CastMember, 0, len(plan.Cast))
	for _, pc := range plan.Cast {
		member := domain.CastMember{
			ID:          uuid.NewString(),
			Name:        pc.Name,
			Description: pc.Description,
		}
		castByName[pc.Name] = member.ID
		cast = append(cast, member)
	}

	var scenes []domain.Scene
	var shots []domain.Shot
	for _, ps := range plan.Scenes {
		scene := domain.Scene{
			ID:       uuid.NewString(),
			Title:    ps.Title,
			Mood:     ps.Mood,
			StartSec: ps.StartSec,
			EndSec:   ps.EndSec,
		}
		scenes = append(scenes, scene)
		for _, sh := range ps.Shots {
			shot := domain.Shot{
				ID:          uuid.NewString(),
				SceneID:     scene.ID,
				Description: sh.Description,
				CameraNote:  sh.CameraNote,
				DurationSec: sh.DurationSec,
			}
			for _, name := range sh.CastNames {
				if id, ok := castByName[name]; ok {
					shot.CastIDs = append(shot.CastIDs, id)
				}
			}
			shots = append(shots, shot)
		}
	}

	state.Cast = cast
	state.Scenes = scenes
	state.Shots = shots
	state.UpdatedAt = now
}
