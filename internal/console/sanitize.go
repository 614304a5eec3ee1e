package console

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// MaxCommandLength bounds a single submitted console command.
const MaxCommandLength = 512

// Match all ANSI/VT100 escape sequences including CSI, OSC, and other control sequences
var ansiEscapePattern = regexp.MustCompile(`\x1b(\[[0-9;?!]*[A-Za-z>hp]|\([B0]|[=>])`)

// SanitizeLine strips escape sequences and control characters, keeping tabs.
func SanitizeLine(line string) string {
	if line == "" {
		return ""
	}
	stripped := ansiEscapePattern.ReplaceAllString(line, "")
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 32 || r == 0x7f {
			return -1
		}
		return r
	}, stripped)
}

// ValidateCommand checks a command from a remote producer before it is
// submitted. Failures wrap server.ErrInvalidLine.
func ValidateCommand(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("%w: command is empty", server.ErrInvalidLine)
	}
	if len(command) > MaxCommandLength {
		return "", fmt.Errorf("%w: command is too long", server.ErrInvalidLine)
	}
	if strings.ContainsAny(command, "\n\r") {
		return "", fmt.Errorf("%w: command contains line breaks", server.ErrInvalidLine)
	}
	if ansiEscapePattern.MatchString(command) || strings.ContainsRune(command, '\x1b') {
		return "", fmt.Errorf("%w: command contains escape sequences", server.ErrInvalidLine)
	}
	return command, nil
}
