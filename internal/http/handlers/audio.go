package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/assets"
	"storyreel/internal/domain"
	"storyreel/internal/storyboard"
)

const maxAudioBytes = 64 << 20

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
}

// AudioUpload stores the track, measures it, and commits the structural
// analysis that storyboard generation reads.
func (a *App) AudioUpload(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !audioExtensions[ext] {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media", "unsupported audio format "+ext)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(data) > maxAudioBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "audio exceeds size limit")
		return
	}

	key := projectID + "/audio/" + assets.Fingerprint(data) + ext
	path, err := a.Files.Write(r.Context(), key, data)
	if err != nil {
		a.fail(w, err)
		return
	}

	duration, err := a.Assembler.ProbeDuration(r.Context(), path)
	if err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("audio: probe failed")
		a.error(w, http.StatusUnprocessableEntity, "unreadable_audio", "could not determine track duration")
		return
	}

	analysis := storyboard.AnalyzeTrack(key, duration, time.Now().UTC())
	err = a.States.WithProjectLock(r.Context(), projectID, func(st *domain.ProjectState) error {
		st.Audio = &analysis
		st.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		a.fail(w, err)
		return
	}

	a.Logger.Info().Str("project_id", projectID).Str("key", key).Float64("duration_sec", duration).Msg("audio: analyzed")
	a.json(w, http.StatusOK, audioUploadResponse{
		Analysis: analysis,
		AudioURL: strings.TrimRight(a.Cfg.StorageBaseURL, "/") + "/" + key,
	})
}

type audioUploadResponse struct {
	Analysis domain.AudioAnalysis `json:"analysis"`
	AudioURL string               `json:"audio_url"`
}
