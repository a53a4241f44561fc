package assemble

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewAssemblerDerivesProbePath(t *testing.T) {
	a := NewAssembler("/opt/ffmpeg/bin/ffmpeg", zerolog.Nop())
	if a.ffprobePath != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("ffprobe path = %q", a.ffprobePath)
	}

	bare := NewAssembler("", zerolog.Nop())
	if bare.ffmpegPath != "ffmpeg" || bare.ffprobePath != "ffprobe" {
		t.Fatalf("bare paths = %q, %q", bare.ffmpegPath, bare.ffprobePath)
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "it's a clip.mp4")

	listPath, cleanup, err := writeConcatList([]string{clip})
	if err != nil {
		t.Fatalf("write list: %v", err)
	}
	defer cleanup()

	raw, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	content := string(raw)
	if !strings.HasPrefix(content, "file '") {
		t.Fatalf("unexpected list format:\n%s", content)
	}
	if !strings.Contains(content, `'\''`) {
		t.Fatalf("quote not escaped:\n%s", content)
	}

	cleanup()
	if _, err := os.Stat(listPath); !os.IsNotExist(err) {
		t.Fatalf("cleanup should remove the list file")
	}
}

func TestAssembleRejectsEmptyClipList(t *testing.T) {
	a := NewAssembler("", zerolog.Nop())
	err := a.Assemble(context.Background(), AssembleRequest{OutPath: filepath.Join(t.TempDir(), "out.mp4")})
	if err == nil || !strings.Contains(err.Error(), "no clips") {
		t.Fatalf("expected no clips error, got %v", err)
	}
}
