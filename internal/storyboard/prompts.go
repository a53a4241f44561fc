package storyboard

import (
	"fmt"
	"strings"

	"storyreel/internal/domain"
)

// ShotPrompt builds the image prompt for one shot, folding in scene context
// and the cast members appearing in frame.
func ShotPrompt(state *domain.ProjectState, shot domain.Shot) string {
	sb := &strings.Builder{}
	sb.WriteString(shot.Description)
	if scene, ok := sceneByID(state, shot.SceneID); ok {
		fmt.Fprintf(sb, "\nScene: %s.", scene.Title)
		if scene.Mood != "" {
			fmt.Fprintf(sb, " Mood: %s.", scene.Mood)
		}
	}
	if shot.CameraNote != "" {
		fmt.Fprintf(sb, "\nCamera: %s.", shot.CameraNote)
	}
	for _, id := range shot.CastIDs {
		if member, ok := state.CastByID(id); ok && member.Description != "" {
			fmt.Fprintf(sb, "\n%s: %s.", member.Name, member.Description)
		}
	}
	if state.Audio != nil && state.Audio.Mood != "" {
		fmt.Fprintf(sb, "\nOverall track mood: %s.", state.Audio.Mood)
	}
	sb.WriteString("\nCinematic still frame, 16:9, no text overlays.")
	return sb.String()
}

// CastPrompt builds the prompt for a cast member's canonical reference image.
func CastPrompt(state *domain.ProjectState, member domain.CastMember) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Character reference sheet for %s.", member.Name)
	if member.Description != "" {
		fmt.Fprintf(sb, " %s.", member.Description)
	}
	if state.Audio != nil && state.Audio.Mood != "" {
		fmt.Fprintf(sb, " The project's mood is %s.", state.Audio.Mood)
	}
	sb.WriteString(" Neutral background, full body, consistent lighting.")
	return sb.String()
}

// ClipPrompt builds the video prompt for animating one shot.
func ClipPrompt(state *domain.ProjectState, shot domain.Shot) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Animate this storyboard shot: %s", shot.Description)
	if shot.CameraNote != "" {
		fmt.Fprintf(sb, "\nCamera movement: %s.", shot.CameraNote)
	}
	if scene, ok := sceneByID(state, shot.SceneID); ok && scene.Mood != "" {
		fmt.Fprintf(sb, "\nKeep the %s mood throughout.", scene.Mood)
	}
	fmt.Fprintf(sb, "\nClip length: %.1f seconds. Smooth motion, no cuts.", shot.DurationSec)
	return sb.String()
}

func sceneByID(state *domain.ProjectState, id string) (domain.Scene, bool) {
	for _, sc := range state.Scenes {
		if sc.ID == id {
			return sc, true
		}
	}
	return domain.Scene{}, false
}
