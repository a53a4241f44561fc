package image

import (
	"context"

	"storyreel/internal/providers/genai"
)

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt        string
	AspectRatio   string
	Locale        string
	ReferenceURLs []string
	RequestID     string
}

// Asset represents one generated still.
type Asset struct {
	URL    string
	Format string
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	url, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:        req.Prompt,
		AspectRatio:   req.AspectRatio,
		Locale:        req.Locale,
		ReferenceURLs: req.ReferenceURLs,
		RequestID:     req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{URL: url, Format: "image/png"}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
