package backup

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	sshkeys "github.com/TheGojiOG/mc-server-wrapper/internal/ssh"
)

// SFTPDestination stores backups on a remote SFTP server
type SFTPDestination struct {
	config     *DestinationConfig
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination connects to the remote host and ensures the base path exists
func NewSFTPDestination(config *DestinationConfig) (*SFTPDestination, error) {
	dest := &SFTPDestination{
		config: config,
	}

	if err := dest.connect(); err != nil {
		return nil, err
	}

	return dest, nil
}

func (sd *SFTPDestination) clientConfig() (*xssh.ClientConfig, error) {
	hostKeyCallback, err := sshkeys.NewHostKeyCallback(sd.config.KnownHostsPath, sd.config.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            sd.config.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case sd.config.KeyPath != "":
		signer, err := sshkeys.LoadSigner(sd.config.KeyPath, sd.config.KeyPassphrase)
		if err != nil {
			return nil, err
		}
		sshConfig.Auth = []xssh.AuthMethod{xssh.PublicKeys(signer)}
	case sd.config.Password != "":
		sshConfig.Auth = []xssh.AuthMethod{xssh.Password(sd.config.Password)}
	default:
		return nil, fmt.Errorf("no authentication method provided for SFTP")
	}

	return sshConfig, nil
}

func (sd *SFTPDestination) connect() error {
	sshConfig, err := sd.clientConfig()
	if err != nil {
		return err
	}

	port := sd.config.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(sd.config.Host, strconv.Itoa(port))
	log.Printf("[SFTPDest] Connecting to %s...", addr)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	sd.sshClient = sshClient

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}
	sd.sftpClient = sftpClient

	if err := sd.sftpClient.MkdirAll(sd.config.Path); err != nil {
		sd.Close()
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	log.Printf("[SFTPDest] Connected successfully")
	return nil
}

// Close closes the SFTP and SSH connections
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

// Upload writes to a temporary remote name and renames it once the size matches
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath := path.Join(sd.config.Path, filename)
	tmpPath := destPath + ".partial"
	log.Printf("[SFTPDest] Uploading %s to %s (%d bytes)", filename, destPath, sizeBytes)

	file, err := sd.sftpClient.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := file.ReadFrom(reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		sd.sftpClient.Remove(tmpPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}

	if written != sizeBytes {
		sd.sftpClient.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}

	if err := sd.sftpClient.PosixRename(tmpPath, destPath); err != nil {
		sd.sftpClient.Remove(tmpPath)
		return fmt.Errorf("failed to finalize remote file: %w", err)
	}

	log.Printf("[SFTPDest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from the SFTP destination
func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	file, err := sd.sftpClient.Open(path.Join(sd.config.Path, filename))
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}
	return nil
}

// Delete removes a backup file from the SFTP destination
func (sd *SFTPDestination) Delete(filename string) error {
	destPath := path.Join(sd.config.Path, filename)
	log.Printf("[SFTPDest] Deleting %s", destPath)

	if err := sd.sftpClient.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// List returns all backup files in the SFTP destination
func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) == ".partial" {
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}

	return files, nil
}

// GetType returns the destination type
func (sd *SFTPDestination) GetType() string {
	return "sftp"
}
