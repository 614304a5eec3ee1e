package server

import (
	"fmt"
	"regexp"
	"strings"
)

// EventKind identifies what a line of server output means.
type EventKind int

const (
	KindUnrecognized EventKind = iota
	KindPlayerJoined
	KindPlayerLeft
	KindServerReady
	KindCommandEcho
)

func (k EventKind) String() string {
	switch k {
	case KindPlayerJoined:
		return "player_joined"
	case KindPlayerLeft:
		return "player_left"
	case KindServerReady:
		return "server_ready"
	case KindCommandEcho:
		return "command_echo"
	default:
		return "unrecognized"
	}
}

// Event is the classification of one output line.
// Player is set for joins and leaves, Text for command echoes.
type Event struct {
	Kind   EventKind
	Player string
	Text   string
	Raw    string
}

func (e Event) String() string {
	switch e.Kind {
	case KindPlayerJoined, KindPlayerLeft:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Player)
	case KindCommandEcho:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	default:
		return e.Kind.String()
	}
}

// Pattern maps a regular expression over the message body to an event.
// Build returns false when the match is not acceptable, in which case the
// line falls through to the next pattern.
type Pattern struct {
	Name  string
	Kind  EventKind
	Regex *regexp.Regexp
	Build func(match []string, body string) (Event, bool)
}

var (
	// Leading "[12:00:00] [Server thread/INFO]:" or "[Server]" groups.
	logPrefix = regexp.MustCompile(`^(?:\[[^\]]*\]:?\s*)+`)
	playerID  = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
)

func playerEvent(kind EventKind) func([]string, string) (Event, bool) {
	return func(m []string, _ string) (Event, bool) {
		if !playerID.MatchString(m[1]) {
			return Event{}, false
		}
		return Event{Kind: kind, Player: m[1]}, true
	}
}

func echoEvent(_ []string, body string) (Event, bool) {
	return Event{Kind: KindCommandEcho, Text: body}, true
}

var patterns = []Pattern{
	{Name: "join", Kind: KindPlayerJoined, Regex: regexp.MustCompile(`^(.+) joined the game$`), Build: playerEvent(KindPlayerJoined)},
	{Name: "leave", Kind: KindPlayerLeft, Regex: regexp.MustCompile(`^(.+) left the game$`), Build: playerEvent(KindPlayerLeft)},
	{Name: "ready", Kind: KindServerReady, Regex: regexp.MustCompile(`^Done \(([0-9.,]+)s\)!`), Build: func([]string, string) (Event, bool) {
		return Event{Kind: KindServerReady}, true
	}},
	{Name: "stopping", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^Stopping the server$`), Build: echoEvent},
	{Name: "saving", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^Saving the game`), Build: echoEvent},
	{Name: "saved", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^Saved the game$`), Build: echoEvent},
	{Name: "autosave", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^Automatic saving is now (?:enabled|disabled)$`), Build: echoEvent},
	{Name: "unknown_command", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^Unknown or incomplete command`), Build: echoEvent},
	{Name: "list", Kind: KindCommandEcho, Regex: regexp.MustCompile(`^There are \d+ of a max of \d+ players online:`), Build: echoEvent},
}

// Patterns returns a copy of the classification table in match order.
func Patterns() []Pattern {
	out := make([]Pattern, len(patterns))
	copy(out, patterns)
	return out
}

// Classify maps a raw output line to an Event. It never fails: anything that
// no pattern accepts is Unrecognized.
func Classify(raw string) Event {
	body := strings.TrimSpace(logPrefix.ReplaceAllString(strings.TrimRight(raw, "\r\n"), ""))
	for _, p := range patterns {
		m := p.Regex.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if ev, ok := p.Build(m, body); ok {
			ev.Raw = raw
			return ev
		}
	}
	return Event{Kind: KindUnrecognized, Raw: raw}
}
