package handlers

import (
	"net/http"
)

// StatsSummary reports queue occupancy and the 24h request breakdown by
// country.
func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	countries, err := a.Analytics.Countries24h(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	pending, running := a.Dispatcher.Stats()
	a.json(w, http.StatusOK, map[string]any{
		"queue": map[string]int{"pending": pending, "running": running},
		"requests_by_country_24h": countries,
	})
}
