package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   EventKind
		player string
		text   string
	}{
		{name: "join with short prefix", raw: "[Server] Alice joined the game", kind: KindPlayerJoined, player: "Alice"},
		{name: "join with vanilla prefix", raw: "[12:01:02] [Server thread/INFO]: Steve_99 joined the game", kind: KindPlayerJoined, player: "Steve_99"},
		{name: "leave", raw: "[Server] Alice left the game", kind: KindPlayerLeft, player: "Alice"},
		{name: "leave with carriage return", raw: "[Server] Bob left the game\r\n", kind: KindPlayerLeft, player: "Bob"},
		{name: "ready short", raw: "[Server] Done (3.1s)!", kind: KindServerReady},
		{name: "ready vanilla", raw: `[12:00:09] [Server thread/INFO]: Done (12.345s)! For help, type "help"`, kind: KindServerReady},
		{name: "stop echo", raw: "[12:10:00] [Server thread/INFO]: Stopping the server", kind: KindCommandEcho, text: "Stopping the server"},
		{name: "save echo", raw: "[12:10:00] [Server thread/INFO]: Saved the game", kind: KindCommandEcho, text: "Saved the game"},
		{name: "list echo", raw: "[Server] There are 1 of a max of 20 players online: Alice", kind: KindCommandEcho, text: "There are 1 of a max of 20 players online: Alice"},
		{name: "unknown command echo", raw: "[Server] Unknown or incomplete command, see below for error", kind: KindCommandEcho, text: "Unknown or incomplete command, see below for error"},
		{name: "chat spoof rejected", raw: "[Server] <Mallory> Eve joined the game", kind: KindUnrecognized},
		{name: "name with spaces rejected", raw: "[Server] Alice Smith joined the game", kind: KindUnrecognized},
		{name: "name too long rejected", raw: "[Server] ThisNameIsWayTooLong joined the game", kind: KindUnrecognized},
		{name: "chat", raw: "[Server] <Alice> hello", kind: KindUnrecognized},
		{name: "empty", raw: "", kind: KindUnrecognized},
		{name: "prefix only", raw: "[12:00:00] [Server thread/INFO]:", kind: KindUnrecognized},
		{name: "ready text mid line", raw: "[Server] <Alice> Done (1s)!", kind: KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Classify(tt.raw)
			assert.Equal(t, tt.kind, ev.Kind, "event %s", ev)
			assert.Equal(t, tt.player, ev.Player)
			assert.Equal(t, tt.text, ev.Text)
			assert.Equal(t, tt.raw, ev.Raw)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	for _, raw := range []string{"[Server] Alice joined the game", "[Server] Done (3.1s)!", "garbage"} {
		assert.Equal(t, Classify(raw), Classify(raw))
	}
}

func TestClassifyReplayBuildsPlayerSet(t *testing.T) {
	lines := []string{
		"[Server] Alice joined the game",
		"[Server] Done (3.1s)!",
		"[Server] Bob joined the game",
		"[Server] Alice left the game",
	}

	var kinds []string
	set := NewPlayerSet()
	for _, l := range lines {
		ev := Classify(l)
		kinds = append(kinds, ev.String())
		set.Apply(ev, time.Now())
	}

	assert.Equal(t, []string{"player_joined(Alice)", "server_ready", "player_joined(Bob)", "player_left(Alice)"}, kinds)
	snap := set.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Bob", snap[0].Name)
}

func TestPatternsReturnsCopy(t *testing.T) {
	p := Patterns()
	require.NotEmpty(t, p)
	p[0].Name = "mutated"
	assert.NotEqual(t, "mutated", Patterns()[0].Name)

	kinds := map[EventKind]bool{}
	for _, pat := range Patterns() {
		kinds[pat.Kind] = true
	}
	assert.True(t, kinds[KindPlayerJoined])
	assert.True(t, kinds[KindPlayerLeft])
	assert.True(t, kinds[KindServerReady])
	assert.True(t, kinds[KindCommandEcho])
}
