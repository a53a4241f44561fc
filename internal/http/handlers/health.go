package handlers

import "net/http"

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	pending, running := a.Dispatcher.Stats()
	a.json(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": pending,
		"running": running,
	})
}
