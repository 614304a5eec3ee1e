package backup

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// ArchiveHandler creates and inspects world archives on the local disk
type ArchiveHandler struct {
	now func() time.Time
}

// ArchiveInfo contains metadata about a created archive
type ArchiveInfo struct {
	Filename    string
	Path        string
	SizeBytes   int64
	CreatedAt   time.Time
	Source      string
	FileCount   int
	Checksum    string
	Compression CompressionConfig
}

// ArchiveOptions contains optional settings for archive creation
type ArchiveOptions struct {
	Compression CompressionConfig
	Exclude     []string
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler() *ArchiveHandler {
	return &ArchiveHandler{now: time.Now}
}

// CreateArchive writes sourceDir into a compressed tar under destDir. Entries
// are stored under the base name of sourceDir. The archive only appears
// under its final name once it is complete.
func (ah *ArchiveHandler) CreateArchive(sourceDir, destDir string, options ArchiveOptions) (*ArchiveInfo, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("world directory is not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("world path is not a directory: %s", sourceDir)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	compression := normalizeCompression(options.Compression)
	createdAt := ah.now()
	filename := fmt.Sprintf("backup_%s.%s", createdAt.Format("2006-01-02_15-04-05"), compressionArchiveExtension(compression))
	archivePath := filepath.Join(destDir, filename)

	log.Printf("[Archive] Creating archive %s from %s", filename, sourceDir)

	tmp, err := os.CreateTemp(destDir, ".backup_*.partial")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := blake3.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}

	fileCount, err := writeTar(counter, sourceDir, compression, options.Exclude)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	result := &ArchiveInfo{
		Filename:    filename,
		Path:        archivePath,
		SizeBytes:   counter.n,
		CreatedAt:   createdAt,
		Source:      sourceDir,
		FileCount:   fileCount,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Compression: compression,
	}

	log.Printf("[Archive] Archive created successfully: %s (size: %d bytes, files: %d)",
		filename, result.SizeBytes, fileCount)

	return result, nil
}

func writeTar(w io.Writer, sourceDir string, compression CompressionConfig, exclude []string) (int, error) {
	cw, err := newCompressWriter(w, compression)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(cw)

	root := filepath.Clean(sourceDir)
	prefix := filepath.Base(root)
	fileCount := 0

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel != "." && isExcluded(filepath.ToSlash(rel), exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// The server may delete region or lock files while we walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path.Join(prefix, filepath.ToSlash(rel))
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", rel, err)
		}
		fileCount++
		return nil
	})

	if err := tw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := cw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	return fileCount, walkErr
}

// isExcluded matches a slash-separated relative path against exclude globs.
// A pattern without a slash matches any path element.
func isExcluded(rel string, exclude []string) bool {
	base := path.Base(rel)
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if strings.Contains(pattern, "/") {
			if ok, _ := path.Match(strings.TrimPrefix(pattern, "/"), rel); ok {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ListArchiveContents lists the entry names of an archive
func (ah *ArchiveHandler) ListArchiveContents(archivePath string) ([]string, error) {
	var names []string
	err := walkArchive(archivePath, func(h *tar.Header, _ io.Reader) error {
		names = append(names, h.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archive contents: %w", err)
	}
	return names, nil
}

// VerifyArchive recomputes the checksum and reads every entry to make sure
// the archive decompresses cleanly.
func (ah *ArchiveHandler) VerifyArchive(archivePath, checksum string) error {
	sum, err := FileChecksum(archivePath)
	if err != nil {
		return err
	}
	if checksum != "" && sum != checksum {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", filepath.Base(archivePath), checksum, sum)
	}

	err = walkArchive(archivePath, func(_ *tar.Header, r io.Reader) error {
		_, err := io.Copy(io.Discard, r)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive %s is unreadable: %w", filepath.Base(archivePath), err)
	}
	return nil
}

// DeleteArchive removes an archive from the local disk
func (ah *ArchiveHandler) DeleteArchive(archivePath string) error {
	log.Printf("[Archive] Deleting archive %s", archivePath)
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func walkArchive(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	rc, err := newDecompressReader(f, detectCompressionFromFilename(archivePath))
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(header, tr); err != nil {
			return err
		}
	}
}

// FileChecksum returns the hex BLAKE3 digest of a file.
func FileChecksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", filepath.Base(filePath), err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
