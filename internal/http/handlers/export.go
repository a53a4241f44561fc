package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"storyreel/internal/domain"
	"storyreel/internal/render"
	"storyreel/pkg/zip"
)

const exportFetchConcurrency = 4

// ExportArchive bundles every committed render plus the storyboard document
// into one zip download. Assets are fetched concurrently; one dead URL fails
// the export rather than shipping an incomplete archive.
func (a *App) ExportArchive(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	state, err := a.States.Read(r.Context(), projectID)
	if err != nil {
		a.fail(w, err)
		return
	}

	type fetched struct {
		name string
		data []byte
	}

	var mu sync.Mutex
	var files []fetched

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(exportFetchConcurrency)
	for targetID, res := range state.Renders {
		if res.Status != domain.RenderStatusDone {
			continue
		}
		targetID, res := targetID, res
		g.Go(func() error {
			data, err := a.fetchRemote(res.AssetURL)(ctx)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", targetID, err)
			}
			mu.Lock()
			files = append(files, fetched{name: exportName(targetID, res.Kind), data: data})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("export: asset fetch failed")
		a.error(w, http.StatusBadGateway, "export_failed", "could not fetch rendered assets")
		return
	}

	board, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		a.fail(w, err)
		return
	}
	entries := make([]zip.Entry, 0, len(files)+1)
	entries = append(entries, zip.Entry{Name: "storyboard.json", Data: board})
	for _, f := range files {
		entries = append(entries, zip.Entry{Name: f.name, Data: f.data})
	}

	var buf bytes.Buffer
	if err := zip.WriteArchive(&buf, entries); err != nil {
		a.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", state.Title+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func exportName(targetID, kind string) string {
	switch kind {
	case string(render.KindVideoRender):
		return "clips/" + targetID + ".mp4"
	case string(render.KindReferenceGeneration):
		return "references/" + targetID + ".png"
	default:
		return "stills/" + targetID + ".png"
	}
}
