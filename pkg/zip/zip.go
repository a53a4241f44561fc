package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// Entry is one file in an export archive.
type Entry struct {
	Name string
	Data []byte
}

// WriteArchive streams the entries as a zip file. Names are sanitized to
// safe relative paths and deduplicated so two entries never clobber each
// other.
func WriteArchive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int, len(entries))
	for _, entry := range entries {
		name := safeName(entry.Name)
		if n := used[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		used[safeName(entry.Name)]++

		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip: close archive: %w", err)
	}
	return nil
}

func safeName(name string) string {
	name = path.Clean(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimPrefix(name, "/")
	if strings.HasPrefix(name, "..") || strings.Contains(name, ":") {
		name = path.Base(name)
	}
	if name == "" || name == "." || name == ".." {
		return "asset"
	}
	return name
}
