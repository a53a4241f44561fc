package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
)

type projectCreateRequest struct {
	Title  string `json:"title"`
	Locale string `json:"locale,omitempty"`
}

func (a *App) ProjectsCreate(w http.ResponseWriter, r *http.Request) {
	var req projectCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}

	state := domain.NewProjectState(uuid.NewString(), req.Title, time.Now().UTC())
	state.Locale = req.Locale
	if err := a.Projects.Save(r.Context(), state.ProjectID, state); err != nil {
		a.fail(w, err)
		return
	}
	a.Logger.Info().Str("project_id", state.ProjectID).Str("title", state.Title).Msg("projects: created")
	a.json(w, http.StatusCreated, state)
}

func (a *App) ProjectsList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	summaries, err := a.Projects.List(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"projects": summaries})
}

func (a *App) ProjectsGet(w http.ResponseWriter, r *http.Request) {
	state, err := a.States.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, state)
}

func (a *App) ProjectsDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Projects.Delete(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	a.Logger.Info().Str("project_id", id).Msg("projects: deleted")
	w.WriteHeader(http.StatusNoContent)
}
