package backup

import (
	"fmt"
	"io"
	"strings"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
	"github.com/TheGojiOG/mc-server-wrapper/internal/crypto"
)

// Destination represents a backup storage destination
type Destination interface {
	// Upload uploads a file from the source reader to the destination
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// Download downloads a file from the destination to the writer
	Download(filename string, writer io.Writer) error

	// Delete removes a file from the destination
	Delete(filename string) error

	// List returns all backup files at the destination
	List() ([]BackupFile, error)

	// GetType returns the destination type identifier
	GetType() string
}

// BackupFile represents a file in a backup destination
type BackupFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// DestinationConfig contains configuration for a backup destination
type DestinationConfig struct {
	config.DestinationConfig

	KnownHostsPath  string
	TrustOnFirstUse bool
}

// Name identifies the destination in logs and backup records.
func (c *DestinationConfig) Name() string {
	switch strings.ToLower(c.Type) {
	case "s3":
		return fmt.Sprintf("s3://%s/%s", c.Bucket, strings.Trim(c.Prefix, "/"))
	case "sftp":
		return fmt.Sprintf("sftp://%s@%s%s", c.Username, c.Host, c.Path)
	default:
		return "local:" + c.Path
	}
}

// resolveSecrets decrypts enc: values in place.
func (c *DestinationConfig) resolveSecrets() error {
	for _, field := range []*string{&c.AccessKey, &c.SecretKey, &c.Password, &c.KeyPassphrase} {
		plain, err := crypto.ResolveSecret(*field)
		if err != nil {
			return fmt.Errorf("failed to resolve secret for %s: %w", c.Name(), err)
		}
		*field = plain
	}
	return nil
}

// NewDestination creates a new backup destination based on config
func NewDestination(cfg *DestinationConfig) (Destination, error) {
	resolved := *cfg
	if err := resolved.resolveSecrets(); err != nil {
		return nil, err
	}

	switch strings.ToLower(resolved.Type) {
	case "local":
		return NewLocalDestination(resolved.Path), nil
	case "sftp":
		return NewSFTPDestination(&resolved)
	case "s3":
		return NewS3Destination(&resolved)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

// closeDestination releases connections held by destinations that keep them.
func closeDestination(dest Destination) {
	if c, ok := dest.(io.Closer); ok {
		c.Close()
	}
}
