package assemble

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Assembler drives the external ffmpeg and ffprobe binaries to measure
// uploaded tracks and stitch rendered clips into the final video.
type Assembler struct {
	ffmpegPath  string
	ffprobePath string
	logger      zerolog.Logger
}

// AssembleRequest names the clip files, in storyboard order, and the audio
// track to lay underneath them.
type AssembleRequest struct {
	ClipPaths []string
	AudioPath string
	OutPath   string
}

func NewAssembler(ffmpegPath string, logger zerolog.Logger) *Assembler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := "ffprobe"
	if dir := filepath.Dir(ffmpegPath); dir != "." {
		ffprobePath = filepath.Join(dir, "ffprobe")
	}
	return &Assembler{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// ProbeDuration returns the track length in seconds.
func (a *Assembler) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, a.ffprobePath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %s", err, strings.TrimSpace(string(output)))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: parse %q: %w", strings.TrimSpace(string(output)), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("ffprobe duration: non-positive length %.3f for %s", duration, path)
	}
	return duration, nil
}

// Assemble concatenates the clips, muxes the audio track under them, and
// writes the result to OutPath. The output is validated for non-zero size
// since ffmpeg can exit zero after writing an empty container.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) error {
	if len(req.ClipPaths) == 0 {
		return fmt.Errorf("assemble: no clips")
	}
	listPath, cleanup, err := writeConcatList(req.ClipPaths)
	if err != nil {
		return err
	}
	defer cleanup()

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	if req.AudioPath != "" {
		args = append(args,
			"-i", req.AudioPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-shortest",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		req.OutPath,
	)

	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg assemble: %w: %s", err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(req.OutPath)
	if err != nil {
		return fmt.Errorf("ffmpeg assemble: missing output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg assemble: empty output %s", req.OutPath)
	}
	a.logger.Info().
		Int("clips", len(req.ClipPaths)).
		Int64("bytes", info.Size()).
		Str("out", req.OutPath).
		Msg("assemble: final video written")
	return nil
}

// writeConcatList emits the ffmpeg concat demuxer file for the clips.
func writeConcatList(paths []string) (string, func(), error) {
	f, err := os.CreateTemp("", "assemble-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("assemble: create concat list: %w", err)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", nil, fmt.Errorf("assemble: resolve clip path %s: %w", p, err)
		}
		// single quotes escape concat list metacharacters
		fmt.Fprintf(f, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("assemble: close concat list: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}
