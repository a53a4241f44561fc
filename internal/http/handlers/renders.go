package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/assets"
	"storyreel/internal/domain"
	"storyreel/internal/render"
	"storyreel/internal/storyboard"
)

type rendersEnqueueRequest struct {
	Kind      string   `json:"kind"` // images | videos | references
	TargetIDs []string `json:"target_ids,omitempty"`
}

type enqueuedJob struct {
	JobID    string `json:"job_id"`
	TargetID string `json:"target_id"`
	Kind     string `json:"kind"`
	Accepted bool   `json:"accepted"`
}

// RendersEnqueue queues generation jobs for the requested targets, or for
// every eligible target on the board when none are named. Re-enqueueing a
// target already in flight reports the existing job.
func (a *App) RendersEnqueue(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	var req rendersEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	state, err := a.States.Read(r.Context(), projectID)
	if err != nil {
		a.fail(w, err)
		return
	}

	var jobs []render.Job
	switch req.Kind {
	case "references":
		jobs, err = a.referenceJobs(state, req.TargetIDs)
	case "images":
		jobs, err = a.imageJobs(state, req.TargetIDs)
	case "videos":
		jobs, err = a.videoJobs(state, req.TargetIDs)
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "kind must be images, videos or references")
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(jobs) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "no_targets", "nothing to render; generate a storyboard first")
		return
	}

	out := make([]enqueuedJob, 0, len(jobs))
	for _, job := range jobs {
		id, accepted := a.Dispatcher.Enqueue(job)
		out = append(out, enqueuedJob{JobID: id, TargetID: job.TargetID(), Kind: string(job.Kind()), Accepted: accepted})
	}
	a.json(w, http.StatusAccepted, map[string]any{"jobs": out})
}

func (a *App) referenceJobs(state *domain.ProjectState, targetIDs []string) ([]render.Job, error) {
	members := state.Cast
	if len(targetIDs) > 0 {
		members = members[:0:0]
		for _, id := range targetIDs {
			m, ok := state.CastByID(id)
			if !ok {
				return nil, fmt.Errorf("cast %s: %w", id, domain.ErrUnknownTarget)
			}
			members = append(members, m)
		}
	}
	jobs := make([]render.Job, 0, len(members))
	for _, m := range members {
		job := render.ReferenceGeneration{
			Project: state.ProjectID,
			Cast:    m,
			Prompt:  storyboard.CastPrompt(state, m),
		}
		if m.RefAssetKey != "" {
			job.Seeds = []render.SourceAsset{{Key: m.RefAssetKey, Load: a.Files.Loader(m.RefAssetKey)}}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *App) imageJobs(state *domain.ProjectState, targetIDs []string) ([]render.Job, error) {
	shots, err := selectShots(state, targetIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]render.Job, 0, len(shots))
	for _, shot := range shots {
		job := render.ImageRender{
			Project: state.ProjectID,
			Shot:    shot,
			Prompt:  storyboard.ShotPrompt(state, shot),
		}
		for _, castID := range shot.CastIDs {
			if src, ok := a.castReferenceSource(state, castID); ok {
				job.References = append(job.References, src)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *App) videoJobs(state *domain.ProjectState, targetIDs []string) ([]render.Job, error) {
	shots, err := selectShots(state, targetIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]render.Job, 0, len(shots))
	for _, shot := range shots {
		job := render.VideoRender{
			Project: state.ProjectID,
			Shot:    shot,
			Prompt:  storyboard.ClipPrompt(state, shot),
		}
		if res, ok := state.Renders[shot.ID]; ok && res.Status == domain.RenderStatusDone && res.Kind == string(render.KindImageRender) {
			job.Stills = []render.SourceAsset{{
				Key:  "still/" + shot.ID,
				Load: a.fetchRemote(res.AssetURL),
			}}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// castReferenceSource prefers an uploaded seed image; failing that it
// re-hosts the rendered reference, whose provider URL may expire.
func (a *App) castReferenceSource(state *domain.ProjectState, castID string) (render.SourceAsset, bool) {
	member, ok := state.CastByID(castID)
	if !ok {
		return render.SourceAsset{}, false
	}
	if member.RefAssetKey != "" {
		return render.SourceAsset{Key: member.RefAssetKey, Load: a.Files.Loader(member.RefAssetKey)}, true
	}
	if res, ok := state.Renders[castID]; ok && res.Status == domain.RenderStatusDone && res.Kind == string(render.KindReferenceGeneration) {
		return render.SourceAsset{Key: "castref/" + castID, Load: a.fetchRemote(res.AssetURL)}, true
	}
	return render.SourceAsset{}, false
}

func selectShots(state *domain.ProjectState, targetIDs []string) ([]domain.Shot, error) {
	if len(targetIDs) == 0 {
		return state.Shots, nil
	}
	shots := make([]domain.Shot, 0, len(targetIDs))
	for _, id := range targetIDs {
		shot, ok := state.ShotByID(id)
		if !ok {
			return nil, fmt.Errorf("shot %s: %w", id, domain.ErrUnknownTarget)
		}
		shots = append(shots, shot)
	}
	return shots, nil
}

// fetchRemote loads bytes from a URL we handed out earlier. Non-2xx answers
// carry their status so the retry policy can classify them.
func (a *App) fetchRemote(url string) render.AssetLoader {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch asset: %w", err)
		}
		resp, err := a.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch asset: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &assets.StatusError{Status: resp.StatusCode, Body: url}
		}
		return io.ReadAll(resp.Body)
	}
}

func (a *App) RendersCancel(w http.ResponseWriter, r *http.Request) {
	a.Dispatcher.CancelAll()
	a.json(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (a *App) RendersPromote(w http.ResponseWriter, r *http.Request) {
	a.Dispatcher.Promote(chi.URLParam(r, "jobID"))
	a.json(w, http.StatusOK, map[string]string{"status": "promoted"})
}

func (a *App) RendersStats(w http.ResponseWriter, r *http.Request) {
	pending, running := a.Dispatcher.Stats()
	a.json(w, http.StatusOK, map[string]int{"pending": pending, "running": running})
}

// RendersEvents streams job lifecycle events over SSE until the client
// disconnects.
func (a *App) RendersEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusNotImplemented, "unsupported", "streaming unsupported")
		return
	}

	events, cancel := a.Dispatcher.Subscribe(64)
	defer cancel()

	// long-lived stream; lift the server write deadline
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: job\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
