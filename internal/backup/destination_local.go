package backup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LocalDestination copies archives into another directory, typically a
// second disk or a mounted network share.
type LocalDestination struct {
	basePath string
}

// NewLocalDestination creates a new local destination
func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{
		basePath: basePath,
	}
}

// Upload copies a backup file to the local destination
func (ld *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	destPath := filepath.Join(ld.basePath, filename)
	log.Printf("[LocalDest] Uploading %s to %s (%d bytes)", filename, destPath, sizeBytes)

	file, err := os.CreateTemp(ld.basePath, "."+filename+".*.partial")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	tmpPath := file.Name()

	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	if written != sizeBytes {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize backup file: %w", err)
	}

	log.Printf("[LocalDest] Upload complete: %s", filename)
	return nil
}

// Download reads a backup file from the local destination
func (ld *LocalDestination) Download(filename string, writer io.Writer) error {
	srcPath := filepath.Join(ld.basePath, filename)

	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	return nil
}

// Delete removes a backup file from the local destination
func (ld *LocalDestination) Delete(filename string) error {
	destPath := filepath.Join(ld.basePath, filename)
	log.Printf("[LocalDest] Deleting %s", destPath)

	if err := os.Remove(destPath); err != nil {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	return nil
}

// List returns all backup files in the local destination
func (ld *LocalDestination) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(ld.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Printf("[LocalDest] Warning: Failed to get info for %s: %v", entry.Name(), err)
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}

	return files, nil
}

// GetType returns the destination type
func (ld *LocalDestination) GetType() string {
	return "local"
}

// Exists checks if a backup file exists
func (ld *LocalDestination) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(ld.basePath, filename))
	return err == nil
}
