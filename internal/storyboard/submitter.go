package storyboard

import (
	"context"
	"fmt"

	"storyreel/internal/providers/image"
	"storyreel/internal/providers/video"
	"storyreel/internal/render"
)

// Provider spend per generation, in cents. Flat rates; video dominates.
const (
	costImageCents = 4
	costVideoCents = 24
)

// ProviderSubmitter routes render jobs to the configured generation
// providers. Resolved source URLs arrive already uploaded by the asset cache.
type ProviderSubmitter struct {
	images image.Generator
	videos video.Generator
	locale string
}

func NewProviderSubmitter(images image.Generator, videos video.Generator, defaultLocale string) *ProviderSubmitter {
	return &ProviderSubmitter{images: images, videos: videos, locale: defaultLocale}
}

func (p *ProviderSubmitter) Submit(ctx context.Context, job render.Job, resolved map[string]string) (render.Result, error) {
	switch j := job.(type) {
	case render.ImageRender:
		asset, err := p.images.Generate(ctx, image.GenerateRequest{
			Prompt:        j.Prompt,
			AspectRatio:   "16:9",
			Locale:        p.locale,
			ReferenceURLs: resolvedURLs(j.References, resolved),
			RequestID:     requestID(job),
		})
		if err != nil {
			return render.Result{}, fmt.Errorf("image render %s: %w", j.Shot.ID, err)
		}
		return render.Result{AssetURL: asset.URL, CostCents: costImageCents}, nil

	case render.ReferenceGeneration:
		asset, err := p.images.Generate(ctx, image.GenerateRequest{
			Prompt:        j.Prompt,
			AspectRatio:   "1:1",
			Locale:        p.locale,
			ReferenceURLs: resolvedURLs(j.Seeds, resolved),
			RequestID:     requestID(job),
		})
		if err != nil {
			return render.Result{}, fmt.Errorf("reference generation %s: %w", j.Cast.ID, err)
		}
		return render.Result{AssetURL: asset.URL, CostCents: costImageCents}, nil

	case render.VideoRender:
		asset, err := p.videos.Generate(ctx, video.GenerateRequest{
			Prompt:      j.Prompt,
			DurationSec: j.Shot.DurationSec,
			StillURLs:   resolvedURLs(j.Stills, resolved),
			Locale:      p.locale,
			RequestID:   requestID(job),
		})
		if err != nil {
			return render.Result{}, fmt.Errorf("video render %s: %w", j.Shot.ID, err)
		}
		return render.Result{AssetURL: asset.URL, CostCents: costVideoCents}, nil

	default:
		return render.Result{}, fmt.Errorf("unsupported job kind %q", job.Kind())
	}
}

var _ render.Submitter = (*ProviderSubmitter)(nil)

func resolvedURLs(sources []render.SourceAsset, resolved map[string]string) []string {
	var urls []string
	for _, src := range sources {
		if url, ok := resolved[src.Key]; ok && url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

func requestID(job render.Job) string {
	return fmt.Sprintf("%s:%s:%s", job.ProjectID(), job.Kind(), job.TargetID())
}
