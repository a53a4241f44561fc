package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/assemble"
	"storyreel/internal/assets"
	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/render"
	"storyreel/internal/storyboard"
)

// App carries the wired services behind the HTTP surface.
type App struct {
	Logger      zerolog.Logger
	Cfg         *infra.Config
	Projects    *repo.ProjectRepo
	Analytics   *repo.AnalyticsRepo
	States      *render.StateStore
	Dispatcher  *render.Dispatcher
	Files       *assets.FileStore
	Storyboards *storyboard.Service
	Assembler   *assemble.Assembler
	HTTPClient  *http.Client
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

// fail maps domain sentinels onto HTTP statuses; anything unknown is a 500.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidPayload):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusForbidden, "quota_exceeded", err.Error())
	case errors.Is(err, domain.ErrUnknownTarget):
		a.error(w, http.StatusUnprocessableEntity, "unknown_target", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
