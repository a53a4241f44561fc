package render

import (
	"time"

	"storyreel/internal/domain"
)

// Kind tags the job variants. It is open: new kinds only need a new variant
// and a Submitter case.
type Kind string

const (
	KindImageRender         Kind = "image_render"
	KindReferenceGeneration Kind = "reference_generation"
	KindVideoRender         Kind = "video_render"
)

// SourceAsset names a local asset a job needs resolved to a remote URL
// before submission. Load runs only on a cache miss.
type SourceAsset struct {
	Key  string
	Load AssetLoader
}

// Job is the tagged variant the dispatcher schedules. The concrete types
// below are the only implementations; dispatch switches over them
// exhaustively instead of comparing kind strings.
type Job interface {
	Kind() Kind
	ProjectID() string
	TargetID() string
	Sources() []SourceAsset

	sealed()
}

// ImageRender renders the still for one storyboard shot.
type ImageRender struct {
	Project    string
	Shot       domain.Shot
	Prompt     string
	References []SourceAsset
}

func (j ImageRender) Kind() Kind             { return KindImageRender }
func (j ImageRender) ProjectID() string      { return j.Project }
func (j ImageRender) TargetID() string       { return j.Shot.ID }
func (j ImageRender) Sources() []SourceAsset { return j.References }
func (ImageRender) sealed()                  {}

// ReferenceGeneration produces the canonical reference image for a cast
// member, later fed into shot renders for visual consistency.
type ReferenceGeneration struct {
	Project string
	Cast    domain.CastMember
	Prompt  string
	Seeds   []SourceAsset
}

func (j ReferenceGeneration) Kind() Kind             { return KindReferenceGeneration }
func (j ReferenceGeneration) ProjectID() string      { return j.Project }
func (j ReferenceGeneration) TargetID() string       { return j.Cast.ID }
func (j ReferenceGeneration) Sources() []SourceAsset { return j.Seeds }
func (ReferenceGeneration) sealed()                  {}

// VideoRender animates one shot into a clip, optionally seeded with the
// shot's rendered still.
type VideoRender struct {
	Project string
	Shot    domain.Shot
	Prompt  string
	Stills  []SourceAsset
}

func (j VideoRender) Kind() Kind             { return KindVideoRender }
func (j VideoRender) ProjectID() string      { return j.Project }
func (j VideoRender) TargetID() string       { return j.Shot.ID }
func (j VideoRender) Sources() []SourceAsset { return j.Stills }
func (VideoRender) sealed()                  {}

var (
	_ Job = ImageRender{}
	_ Job = ReferenceGeneration{}
	_ Job = VideoRender{}
)

// JobState tracks a job through the queue.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateDone      JobState = "done"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Event is delivered to subscribers when a job reaches a terminal state or
// starts running, so presentation layers update without polling.
type Event struct {
	JobID     string    `json:"job_id"`
	Kind      Kind      `json:"kind"`
	ProjectID string    `json:"project_id"`
	TargetID  string    `json:"target_id"`
	State     JobState  `json:"state"`
	AssetURL  string    `json:"asset_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Result is what a Submitter returns for a successful generation.
type Result struct {
	AssetURL  string
	CostCents int64
}
