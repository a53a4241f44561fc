package video

import (
	"context"

	"storyreel/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to any video provider.
type GenerateRequest struct {
	Prompt      string
	DurationSec float64
	StillURLs   []string
	Locale      string
	RequestID   string
}

// Asset represents one generated clip.
type Asset struct {
	URL    string
	Format string
}

// Generator is the contract implemented by all video providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// VEO animates storyboard stills through the Veo model family exposed by the
// Gemini API surface.
type VEO struct {
	client *genai.Client
}

func NewVEO(client *genai.Client) *VEO {
	return &VEO{client: client}
}

func (v *VEO) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	url, err := v.client.GenerateVideo(ctx, genai.VideoRequest{
		Prompt:      req.Prompt,
		DurationSec: req.DurationSec,
		StillURLs:   req.StillURLs,
		Locale:      req.Locale,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{URL: url, Format: "video/mp4"}, nil
}

var _ Generator = (*VEO)(nil)
