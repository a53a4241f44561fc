package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"storyreel/internal/assemble"
	"storyreel/internal/domain"
	"storyreel/internal/render"
)

// AssembleVideo downloads the committed clips in storyboard order, stitches
// them over the uploaded track and streams the final video back.
func (a *App) AssembleVideo(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	state, err := a.States.Read(r.Context(), projectID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if state.Audio == nil {
		a.error(w, http.StatusUnprocessableEntity, "no_audio", "upload audio before assembling")
		return
	}

	type clip struct {
		order int
		url   string
	}
	var clips []clip
	for i, shot := range state.Shots {
		res, ok := state.Renders[shot.ID]
		if ok && res.Status == domain.RenderStatusDone && res.Kind == string(render.KindVideoRender) {
			clips = append(clips, clip{order: i, url: res.AssetURL})
		}
	}
	if len(clips) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "no_clips", "no committed video renders to assemble")
		return
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].order < clips[j].order })

	workDir, err := os.MkdirTemp("", "assemble-"+projectID+"-*")
	if err != nil {
		a.fail(w, err)
		return
	}
	defer os.RemoveAll(workDir)

	clipPaths := make([]string, len(clips))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(exportFetchConcurrency)
	for i, c := range clips {
		i, c := i, c
		g.Go(func() error {
			data, err := a.fetchRemote(c.url)(ctx)
			if err != nil {
				return fmt.Errorf("fetch clip %d: %w", i, err)
			}
			p := filepath.Join(workDir, fmt.Sprintf("clip-%03d.mp4", i))
			if err := os.WriteFile(p, data, 0o644); err != nil {
				return err
			}
			clipPaths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("assemble: clip fetch failed")
		a.error(w, http.StatusBadGateway, "assemble_failed", "could not fetch rendered clips")
		return
	}

	audio, err := a.Files.Read(r.Context(), state.Audio.AssetKey)
	if err != nil {
		a.fail(w, err)
		return
	}
	audioPath := filepath.Join(workDir, "track"+filepath.Ext(state.Audio.AssetKey))
	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		a.fail(w, err)
		return
	}

	outPath := filepath.Join(workDir, "final.mp4")
	err = a.Assembler.Assemble(r.Context(), assemble.AssembleRequest{
		ClipPaths: clipPaths,
		AudioPath: audioPath,
		OutPath:   outPath,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("assemble: ffmpeg failed")
		a.error(w, http.StatusInternalServerError, "assemble_failed", "video assembly failed")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", state.Title+".mp4"))
	http.ServeFile(w, r, outPath)
}
