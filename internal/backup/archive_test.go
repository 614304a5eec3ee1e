package backup

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeWorld(t *testing.T) string {
	t.Helper()
	world := filepath.Join(t.TempDir(), "world")
	files := map[string]string{
		"level.dat":            "level",
		"region/r.0.0.mca":     strings.Repeat("chunk", 1000),
		"region/r.0.1.mca":     "chunk",
		"session.lock":         "lock",
		"logs/latest.log":      "log",
		"playerdata/alice.dat": "alice",
	}
	for name, content := range files {
		p := filepath.Join(world, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return world
}

func TestCreateArchiveEachCompression(t *testing.T) {
	world := writeWorld(t)

	for _, codec := range []string{"gzip", "zstd", "lz4", "none"} {
		t.Run(codec, func(t *testing.T) {
			handler := NewArchiveHandler()
			info, err := handler.CreateArchive(world, t.TempDir(), ArchiveOptions{
				Compression: CompressionConfig{Type: codec},
			})
			if err != nil {
				t.Fatalf("create archive failed: %v", err)
			}
			if !strings.HasSuffix(info.Filename, "."+compressionArchiveExtension(CompressionConfig{Type: codec})) {
				t.Fatalf("unexpected filename %s", info.Filename)
			}
			if info.FileCount != 6 {
				t.Fatalf("expected 6 files, got %d", info.FileCount)
			}

			stat, err := os.Stat(info.Path)
			if err != nil {
				t.Fatalf("archive missing: %v", err)
			}
			if stat.Size() != info.SizeBytes {
				t.Fatalf("size mismatch: stat %d, info %d", stat.Size(), info.SizeBytes)
			}

			if err := handler.VerifyArchive(info.Path, info.Checksum); err != nil {
				t.Fatalf("verify failed: %v", err)
			}

			names, err := handler.ListArchiveContents(info.Path)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if !slices.Contains(names, "world/region/r.0.0.mca") {
				t.Fatalf("expected entries under world/, got %v", names)
			}
		})
	}
}

func TestCreateArchiveExcludes(t *testing.T) {
	world := writeWorld(t)
	handler := NewArchiveHandler()

	info, err := handler.CreateArchive(world, t.TempDir(), ArchiveOptions{
		Exclude: []string{"session.lock", "logs", "region/r.0.1.mca"},
	})
	if err != nil {
		t.Fatalf("create archive failed: %v", err)
	}

	names, err := handler.ListArchiveContents(info.Path)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, excluded := range []string{"world/session.lock", "world/logs/", "world/logs/latest.log", "world/region/r.0.1.mca"} {
		if slices.Contains(names, excluded) {
			t.Fatalf("expected %s to be excluded, got %v", excluded, names)
		}
	}
	if info.FileCount != 3 {
		t.Fatalf("expected 3 files, got %d", info.FileCount)
	}
}

func TestCreateArchiveLeavesNoPartialFiles(t *testing.T) {
	dest := t.TempDir()
	handler := NewArchiveHandler()

	if _, err := handler.CreateArchive(filepath.Join(t.TempDir(), "missing"), dest, ArchiveOptions{}); err == nil {
		t.Fatalf("expected error for missing world")
	}

	info, err := handler.CreateArchive(writeWorld(t), dest, ArchiveOptions{})
	if err != nil {
		t.Fatalf("create archive failed: %v", err)
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != info.Filename {
		t.Fatalf("expected only the final archive, got %v", entries)
	}
}

func TestVerifyArchiveDetectsCorruption(t *testing.T) {
	handler := NewArchiveHandler()
	info, err := handler.CreateArchive(writeWorld(t), t.TempDir(), ArchiveOptions{})
	if err != nil {
		t.Fatalf("create archive failed: %v", err)
	}

	if err := handler.VerifyArchive(info.Path, "deadbeef"); err == nil {
		t.Fatalf("expected checksum mismatch")
	}

	if err := os.Truncate(info.Path, info.SizeBytes/2); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	if err := handler.VerifyArchive(info.Path, ""); err == nil {
		t.Fatalf("expected truncated archive to fail verification")
	}
}

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		rel     string
		exclude []string
		want    bool
	}{
		{"session.lock", []string{"session.lock"}, true},
		{"DIM1/session.lock", []string{"session.lock"}, true},
		{"region/r.0.0.mca", []string{"*.mca"}, true},
		{"region/r.0.0.mca", []string{"region/*"}, true},
		{"region/r.0.0.mca", []string{"/region/*"}, true},
		{"DIM1/region/r.0.0.mca", []string{"region/*"}, false},
		{"level.dat", []string{"", " "}, false},
		{"level.dat", nil, false},
	}
	for _, tt := range tests {
		if got := isExcluded(tt.rel, tt.exclude); got != tt.want {
			t.Errorf("isExcluded(%q, %v) = %v, want %v", tt.rel, tt.exclude, got, tt.want)
		}
	}
}
