package storyboard

import (
	"math"
	"time"

	"storyreel/internal/domain"
)

// section shape applied to tracks long enough to carry structure. Fractions
// of total duration, energies tuned to a typical pop arc.
var trackShape = []struct {
	label    string
	fraction float64
	energy   float64
}{
	{"intro", 0.10, 0.25},
	{"verse", 0.25, 0.45},
	{"chorus", 0.20, 0.80},
	{"bridge", 0.15, 0.50},
	{"chorus reprise", 0.20, 0.85},
	{"outro", 0.10, 0.20},
}

// AnalyzeTrack derives a structural breakdown from the track duration. Short
// tracks get a single section; longer ones follow a conventional song arc.
// The probe supplies duration only, so positions come from proportions
// rather than signal analysis.
func AnalyzeTrack(assetKey string, durationSec float64, now time.Time) domain.AudioAnalysis {
	analysis := domain.AudioAnalysis{
		AssetKey:    assetKey,
		DurationSec: durationSec,
		AnalyzedAt:  now,
	}
	if durationSec <= 0 {
		return analysis
	}
	if durationSec < 30 {
		analysis.Sections = []domain.AudioSection{{
			Label: "full track", StartSec: 0, EndSec: durationSec, Energy: 0.5,
		}}
		analysis.Mood = "steady"
		return analysis
	}

	cursor := 0.0
	var peak float64
	for _, part := range trackShape {
		length := durationSec * part.fraction
		end := math.Min(cursor+length, durationSec)
		analysis.Sections = append(analysis.Sections, domain.AudioSection{
			Label:    part.label,
			StartSec: round1(cursor),
			EndSec:   round1(end),
			Energy:   part.energy,
		})
		if part.energy > peak {
			peak = part.energy
		}
		cursor = end
	}
	// stretch the last section to cover rounding remainder
	analysis.Sections[len(analysis.Sections)-1].EndSec = round1(durationSec)
	analysis.Mood = moodForEnergy(peak)
	return analysis
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
