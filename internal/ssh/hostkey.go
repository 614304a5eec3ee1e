package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

// ErrUnknownHost is returned for a host with no known_hosts entry when
// trust on first use is off.
var ErrUnknownHost = errors.New("unknown SSH host key")

// ErrHostKeyChanged is returned when a host presents a key different from
// the one recorded for it.
var ErrHostKeyChanged = errors.New("SSH host key changed")

// KnownHosts verifies backup destination host keys against a known_hosts
// file and, when allowed, pins keys for hosts it has not seen before.
type KnownHosts struct {
	path            string
	trustOnFirstUse bool

	mu sync.Mutex
}

// NewKnownHosts creates the known_hosts file if needed.
func NewKnownHosts(path string, trustOnFirstUse bool) (*KnownHosts, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	f.Close()
	return &KnownHosts{path: path, trustOnFirstUse: trustOnFirstUse}, nil
}

// NewHostKeyCallback returns a callback for knownHostsPath. An empty path
// disables verification.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		logging.L().Warn("ssh host key verification disabled: no known_hosts path configured")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	kh, err := NewKnownHosts(knownHostsPath, trustOnFirstUse)
	if err != nil {
		return nil, err
	}
	return kh.Check, nil
}

// Check implements ssh.HostKeyCallback. The file is re-read on every call
// so keys pinned by earlier connections are honored.
func (k *KnownHosts) Check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	verify, err := knownhosts.New(k.path)
	if err != nil {
		return fmt.Errorf("failed to read known_hosts: %w", err)
	}

	err = verify(hostname, remote, key)
	var keyErr *knownhosts.KeyError
	if err == nil || !errors.As(err, &keyErr) {
		return err
	}

	fingerprint := ssh.FingerprintSHA256(key)
	if len(keyErr.Want) > 0 {
		logging.L().Warn("ssh_host_key_changed", "host", hostname, "fingerprint", fingerprint)
		return fmt.Errorf("%w for %s", ErrHostKeyChanged, hostname)
	}
	if !k.trustOnFirstUse {
		return fmt.Errorf("%w for %s (%s)", ErrUnknownHost, hostname, fingerprint)
	}

	if err := k.pin(hostPatterns(hostname, remote), key); err != nil {
		return err
	}
	logging.L().Info("ssh_host_key_accepted", "host", hostname, "fingerprint", fingerprint)
	return nil
}

func (k *KnownHosts) pin(patterns []string, key ssh.PublicKey) error {
	f, err := os.OpenFile(k.path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, knownhosts.Line(patterns, key)); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// hostPatterns lists the dialed name and, when different, the remote IP,
// both in known_hosts notation.
func hostPatterns(hostname string, remote net.Addr) []string {
	var patterns []string
	if hostname != "" {
		patterns = append(patterns, knownhosts.Normalize(hostname))
	}
	if remote != nil {
		addr := knownhosts.Normalize(remote.String())
		if len(patterns) == 0 || patterns[0] != addr {
			patterns = append(patterns, addr)
		}
	}
	return patterns
}
