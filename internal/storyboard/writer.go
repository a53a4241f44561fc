package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/domain"
	"storyreel/internal/providers/genai"
)

const (
	staticWriterName = "static"
	geminiWriterName = "gemini"
)

// PlanRequest carries everything a writer needs to break a track into scenes.
type PlanRequest struct {
	Title  string
	Locale string
	Audio  domain.AudioAnalysis
	Notes  string
}

// PlannedCast is a recurring subject the writer wants rendered consistently.
type PlannedCast struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PlannedShot is one render unit inside a scene.
type PlannedShot struct {
	Description string   `json:"description"`
	CameraNote  string   `json:"camera_note,omitempty"`
	CastNames   []string `json:"cast_names,omitempty"`
	DurationSec float64  `json:"duration_sec"`
}

// PlannedScene spans one section of the track.
type PlannedScene struct {
	Title    string        `json:"title"`
	Mood     string        `json:"mood,omitempty"`
	StartSec float64       `json:"start_sec"`
	EndSec   float64       `json:"end_sec"`
	Shots    []PlannedShot `json:"shots"`
}

// Plan is the writer's full storyboard proposal.
type Plan struct {
	Cast     []PlannedCast  `json:"cast"`
	Scenes   []PlannedScene `json:"scenes"`
	Provider string         `json:"-"`
}

// Writer turns an analyzed track into a storyboard plan.
type Writer interface {
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
}

// StaticWriter is the deterministic fallback used when no model is reachable.
// It allocates one scene per audio section and slices each into beats of
// roughly four seconds.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sections := req.Audio.Sections
	if len(sections) == 0 {
		sections = []domain.AudioSection{{Label: "full track", StartSec: 0, EndSec: req.Audio.DurationSec, Energy: 0.5}}
	}
	titleCase := cases.Title(matchLocale(req.Locale))
	lead := PlannedCast{
		Name:        "Lead performer",
		Description: fmt.Sprintf("The central figure of %q, consistent across every shot", req.Title),
	}
	plan := &Plan{Cast: []PlannedCast{lead}, Provider: staticWriterName}

	for _, section := range sections {
		scene := PlannedScene{
			Title:    titleCase.String(section.Label),
			Mood:     section.MoodWords,
			StartSec: section.StartSec,
			EndSec:   section.EndSec,
		}
		if scene.Mood == "" {
			scene.Mood = moodForEnergy(section.Energy)
		}
		for _, span := range splitSpan(section.StartSec, section.EndSec, 4.0) {
			shot := PlannedShot{
				Description: fmt.Sprintf("%s beat of %q, %s atmosphere", scene.Title, req.Title, scene.Mood),
				CastNames:   []string{lead.Name},
				DurationSec: span,
			}
			if section.Energy >= 0.7 {
				shot.CameraNote = "fast push-in"
			} else if section.Energy <= 0.3 {
				shot.CameraNote = "slow drift"
			}
			scene.Shots = append(scene.Shots, shot)
		}
		plan.Scenes = append(plan.Scenes, scene)
	}
	return plan, nil
}

var _ Writer = (*StaticWriter)(nil)

// GeminiWriter asks the model for a storyboard plan and falls back to the
// static writer when the call fails or returns an unusable document.
type GeminiWriter struct {
	client   *genai.Client
	fallback Writer
	logger   zerolog.Logger
}

func NewGeminiWriter(client *genai.Client, fallback Writer, logger zerolog.Logger) *GeminiWriter {
	if fallback == nil {
		fallback = NewStaticWriter()
	}
	return &GeminiWriter{client: client, fallback: fallback, logger: logger}
}

func (g *GeminiWriter) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	text, err := g.client.GenerateText(ctx, genai.TextRequest{
		Prompt:       buildPlanPrompt(req),
		ResponseJSON: true,
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("project_title", req.Title).Msg("storyboard: model plan failed, using static writer")
		return g.fallback.Plan(ctx, req)
	}
	var plan Plan
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &plan); err != nil || len(plan.Scenes) == 0 {
		g.logger.Warn().Err(err).Msg("storyboard: model plan unusable, using static writer")
		return g.fallback.Plan(ctx, req)
	}
	plan.Provider = geminiWriterName
	clampPlan(&plan, req.Audio.DurationSec)
	return &plan, nil
}

var _ Writer = (*GeminiWriter)(nil)

func buildPlanPrompt(req PlanRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a music video storyboard writer. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"cast":[{"name":string,"description":string}],"scenes":[{"title":string,"mood":string,"start_sec":number,"end_sec":number,"shots":[{"description":string,"camera_note":string,"cast_names":string[],"duration_sec":number}]}]}`)
	fmt.Fprintf(sb, ". Track title: %q. Total length: %.1f seconds.", req.Title, req.Audio.DurationSec)
	if req.Audio.Mood != "" {
		fmt.Fprintf(sb, " Overall mood: %s.", req.Audio.Mood)
	}
	if req.Audio.BPM > 0 {
		fmt.Fprintf(sb, " Tempo: %.0f BPM.", req.Audio.BPM)
	}
	for _, s := range req.Audio.Sections {
		fmt.Fprintf(sb, " Section %q from %.1fs to %.1fs (energy %.2f).", s.Label, s.StartSec, s.EndSec, s.Energy)
	}
	if req.Notes != "" {
		fmt.Fprintf(sb, " Creative direction from the author: %s.", req.Notes)
	}
	locale := req.Locale
	if locale == "" {
		locale = "en"
	}
	fmt.Fprintf(sb, " Write all text in locale '%s'. Shots must tile each section without gaps and run 2 to 8 seconds each. Reuse cast names exactly across shots.", locale)
	return sb.String()
}

// clampPlan keeps model output inside the track and drops degenerate shots.
func clampPlan(plan *Plan, durationSec float64) {
	scenes := plan.Scenes[:0]
	for _, scene := range plan.Scenes {
		if scene.StartSec < 0 {
			scene.StartSec = 0
		}
		if durationSec > 0 && scene.EndSec > durationSec {
			scene.EndSec = durationSec
		}
		if scene.EndSec <= scene.StartSec {
			continue
		}
		shots := scene.Shots[:0]
		for _, shot := range scene.Shots {
			if strings.TrimSpace(shot.Description) == "" {
				continue
			}
			if shot.DurationSec <= 0 {
				shot.DurationSec = 4
			}
			shots = append(shots, shot)
		}
		if len(shots) == 0 {
			continue
		}
		scene.Shots = shots
		scenes = append(scenes, scene)
	}
	plan.Scenes = scenes
}

func splitSpan(start, end, target float64) []float64 {
	length := end - start
	if length <= 0 {
		return nil
	}
	n := int(length/target + 0.5)
	if n < 1 {
		n = 1
	}
	spans := make([]float64, n)
	each := length / float64(n)
	for i := range spans {
		spans[i] = each
	}
	return spans
}

func moodForEnergy(energy float64) string {
	switch {
	case energy >= 0.7:
		return "intense"
	case energy <= 0.3:
		return "calm"
	default:
		return "steady"
	}
}

func matchLocale(locale string) language.Tag {
	if locale == "" {
		return language.Und
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Und
	}
	return tag
}
