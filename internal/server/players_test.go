package server

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlayerSetJoinIsIdempotent(t *testing.T) {
	set := NewPlayerSet()
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, set.Join("Alice", first))
	assert.False(t, set.Join("Alice", first.Add(time.Hour)))

	snap := set.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, first, snap[0].JoinedAt)
}

func TestPlayerSetLeaveUnknownIsNoop(t *testing.T) {
	set := NewPlayerSet()
	set.Join("Alice", time.Now())

	assert.False(t, set.Leave("Bob"))
	assert.True(t, set.Contains("Alice"))
	assert.Equal(t, 1, set.Len())
}

func TestPlayerSetClear(t *testing.T) {
	set := NewPlayerSet()
	set.Join("Alice", time.Now())
	set.Join("Bob", time.Now())
	set.Clear()
	assert.Zero(t, set.Len())
	assert.Empty(t, set.Snapshot())
}

func TestPlayerSetSnapshotSorted(t *testing.T) {
	set := NewPlayerSet()
	for _, name := range []string{"zed", "Alice", "bob"} {
		set.Join(name, time.Now())
	}
	var names []string
	for _, p := range set.Snapshot() {
		names = append(names, p.Name)
	}
	assert.True(t, sort.StringsAreSorted(names))
}

// Replaying any join/leave sequence yields names joined minus names whose
// last event was a leave.
func TestPlayerSetReplayMatchesModel(t *testing.T) {
	names := []string{"Alice", "Bob", "Carol", "Dave"}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		set := NewPlayerSet()
		last := map[string]EventKind{}

		for i := 0; i < 30; i++ {
			name := names[rng.Intn(len(names))]
			kind := KindPlayerJoined
			if rng.Intn(2) == 0 {
				kind = KindPlayerLeft
			}
			set.Apply(Event{Kind: kind, Player: name}, time.Now())
			last[name] = kind
		}

		var want []string
		for name, kind := range last {
			if kind == KindPlayerJoined {
				want = append(want, name)
			}
		}
		sort.Strings(want)

		var got []string
		for _, p := range set.Snapshot() {
			got = append(got, p.Name)
		}
		assert.Equal(t, want, got, "round %d", round)
	}
}

func TestPlayerSetIgnoresOtherEvents(t *testing.T) {
	set := NewPlayerSet()
	assert.False(t, set.Apply(Event{Kind: KindServerReady}, time.Now()))
	assert.False(t, set.Apply(Event{Kind: KindCommandEcho, Text: "x"}, time.Now()))
	assert.Zero(t, set.Len())
}
