package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type storyboardGenerateRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (a *App) StoryboardGenerate(w http.ResponseWriter, r *http.Request) {
	var req storyboardGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	state, err := a.Storyboards.Generate(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, state)
}
