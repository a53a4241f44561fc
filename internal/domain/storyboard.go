package domain

import "time"

// AudioSection is a contiguous span of the source track with a consistent feel.
type AudioSection struct {
	Label     string  `json:"label"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	Energy    float64 `json:"energy"`
	MoodWords string  `json:"mood_words,omitempty"`
}

// AudioAnalysis is the structural breakdown of the uploaded track that the
// storyboard is generated from.
type AudioAnalysis struct {
	AssetKey    string         `json:"asset_key"`
	DurationSec float64        `json:"duration_sec"`
	BPM         float64        `json:"bpm,omitempty"`
	Mood        string         `json:"mood,omitempty"`
	Sections    []AudioSection `json:"sections,omitempty"`
	AnalyzedAt  time.Time      `json:"analyzed_at"`
}

// CastMember is a recurring character or subject that shots reference. The
// reference image generated for it keeps renders visually consistent.
type CastMember struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RefAssetKey string `json:"ref_asset_key,omitempty"`
}

// Scene groups shots over one span of the track.
type Scene struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Mood     string  `json:"mood,omitempty"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Shot is the render unit of the storyboard.
type Shot struct {
	ID          string   `json:"id"`
	SceneID     string   `json:"scene_id"`
	Description string   `json:"description"`
	CameraNote  string   `json:"camera_note,omitempty"`
	CastIDs     []string `json:"cast_ids,omitempty"`
	DurationSec float64  `json:"duration_sec"`
}
