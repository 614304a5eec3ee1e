package backup

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionConfig controls archive compression
// Type values: "gzip", "zstd", "lz4", "none"
type CompressionConfig struct {
	Type  string `json:"type"`
	Level int    `json:"level,omitempty"`
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func normalizeCompression(config CompressionConfig) CompressionConfig {
	compressionType := strings.ToLower(strings.TrimSpace(config.Type))
	switch compressionType {
	case "gzip", "zstd", "lz4", "none":
	default:
		compressionType = "gzip"
	}

	level := config.Level
	switch compressionType {
	case "none":
		level = 0
	case "zstd":
		if level == 0 {
			level = 3
		}
		level = min(max(level, 1), 22)
	case "lz4":
		// 0 selects the fast mode, 1-9 the high-compression levels.
		level = min(max(level, 0), 9)
	default:
		if level == 0 {
			level = 6
		}
		level = min(max(level, 1), 9)
	}

	return CompressionConfig{
		Type:  compressionType,
		Level: level,
	}
}

func compressionArchiveExtension(config CompressionConfig) string {
	switch normalizeCompression(config).Type {
	case "none":
		return "tar"
	case "zstd":
		return "tar.zst"
	case "lz4":
		return "tar.lz4"
	default:
		return "tar.gz"
	}
}

func detectCompressionFromFilename(filename string) CompressionConfig {
	base := strings.ToLower(path.Base(filename))
	switch {
	case strings.HasSuffix(base, ".tar.gz") || strings.HasSuffix(base, ".tgz"):
		return CompressionConfig{Type: "gzip", Level: 6}
	case strings.HasSuffix(base, ".tar.zst"):
		return CompressionConfig{Type: "zstd", Level: 3}
	case strings.HasSuffix(base, ".tar.lz4"):
		return CompressionConfig{Type: "lz4"}
	case strings.HasSuffix(base, ".tar"):
		return CompressionConfig{Type: "none"}
	default:
		return CompressionConfig{Type: "gzip", Level: 6}
	}
}

func contentType(config CompressionConfig) string {
	switch normalizeCompression(config).Type {
	case "gzip":
		return "application/gzip"
	case "zstd":
		return "application/zstd"
	case "none":
		return "application/x-tar"
	default:
		return "application/octet-stream"
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newCompressWriter wraps w with the configured codec. Closing the returned
// writer flushes the codec but does not close w.
func newCompressWriter(w io.Writer, config CompressionConfig) (io.WriteCloser, error) {
	config = normalizeCompression(config)
	switch config.Type {
	case "none":
		return nopWriteCloser{w}, nil
	case "zstd":
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(config.Level)))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case "lz4":
		zw := lz4.NewWriter(w)
		level := lz4.Fast
		if config.Level > 0 {
			level = lz4Levels[config.Level-1]
		}
		if err := zw.Apply(lz4.CompressionLevelOption(level)); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return zw, nil
	default:
		zw, err := gzip.NewWriterLevel(w, config.Level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return zw, nil
	}
}

// newDecompressReader is the inverse of newCompressWriter.
func newDecompressReader(r io.Reader, config CompressionConfig) (io.ReadCloser, error) {
	switch normalizeCompression(config).Type {
	case "none":
		return io.NopCloser(r), nil
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case "lz4":
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	}
}
