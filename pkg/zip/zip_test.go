package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestWriteArchiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := WriteArchive(&buf, []Entry{
		{Name: "shot-1.png", Data: []byte("one")},
		{Name: "clips/shot-2.mp4", Data: []byte("two")},
	})
	if err != nil {
		t.Fatalf("write archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[1].Name != "clips/shot-2.mp4" {
		t.Fatalf("relative path should be preserved, got %q", zr.File[1].Name)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "one" {
		t.Fatalf("entry content = %q", data)
	}
}

func TestWriteArchiveDeduplicatesNames(t *testing.T) {
	var buf bytes.Buffer
	err := WriteArchive(&buf, []Entry{
		{Name: "still.png", Data: []byte("a")},
		{Name: "still.png", Data: []byte("b")},
	})
	if err != nil {
		t.Fatalf("write archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		if names[f.Name] {
			t.Fatalf("duplicate entry name %q", f.Name)
		}
		names[f.Name] = true
	}
	if !names["still.png"] || !names["still-1.png"] {
		t.Fatalf("expected deduplicated names, got %v", names)
	}
}

func TestSafeNameFallback(t *testing.T) {
	if got := safeName(""); got != "asset" {
		t.Fatalf("safeName(\"\") = %q", got)
	}
	if got := safeName(`C:\evil\..\name.png`); got != "name.png" {
		t.Fatalf("safeName windows path = %q", got)
	}
	if got := safeName("../../etc/passwd"); got != "passwd" {
		t.Fatalf("safeName traversal = %q", got)
	}
}
