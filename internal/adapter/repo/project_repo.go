package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// ProjectRepo persists project documents as single jsonb rows. It is the
// durability side of the render state store; all locking lives above it.
type ProjectRepo struct {
	sql infra.SQLExecutor
}

func NewProjectRepo(sql infra.SQLExecutor) *ProjectRepo {
	return &ProjectRepo{sql: sql}
}

// Load fetches and decodes the latest persisted document.
func (r *ProjectRepo) Load(ctx context.Context, projectID string) (*domain.ProjectState, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectProjectState, projectID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: select project %s: %w", projectID, err)
	}
	var state domain.ProjectState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("repo: decode project %s: %w", projectID, err)
	}
	return &state, nil
}

// Save writes the whole document atomically.
func (r *ProjectRepo) Save(ctx context.Context, projectID string, state *domain.ProjectState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repo: encode project %s: %w", projectID, err)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertProjectState, projectID, raw); err != nil {
		return fmt.Errorf("repo: upsert project %s: %w", projectID, err)
	}
	return nil
}

// Delete removes the project document, and with it the project's cache
// entries and ledger.
func (r *ProjectRepo) Delete(ctx context.Context, projectID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteProjectState, projectID); err != nil {
		return fmt.Errorf("repo: delete project %s: %w", projectID, err)
	}
	return nil
}

// ProjectSummary is the listing row for the project index view.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns recently updated projects.
func (r *ProjectRepo) List(ctx context.Context, limit int) ([]ProjectSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListProjectStates, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var s ProjectSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan project row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
