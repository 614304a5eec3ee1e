package console

import (
	"testing"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

func TestRingBufferOrder(t *testing.T) {
	buffer := NewRingBuffer(3)
	buffer.Add("one")
	buffer.Add("two")
	buffer.Add("three")
	buffer.Add("four")

	lines := buffer.GetLines()
	expected := []string{"two", "three", "four"}
	if len(lines) != len(expected) {
		t.Fatalf("unexpected buffer length: %d", len(lines))
	}
	for i, line := range expected {
		if lines[i] != line {
			t.Fatalf("expected %s at %d, got %s", line, i, lines[i])
		}
	}

	last := buffer.GetLast(2)
	if len(last) != 2 || last[0] != "three" || last[1] != "four" {
		t.Fatalf("unexpected last lines: %v", last)
	}
}

func TestRingBufferPartialIsCopy(t *testing.T) {
	buffer := NewRingBuffer(4)
	buffer.Add("a")
	buffer.Add("b")

	lines := buffer.GetLines()
	lines[0] = "mutated"
	if got := buffer.GetLines()[0]; got != "a" {
		t.Fatalf("expected buffer to be unaffected by callers, got %s", got)
	}
	if buffer.Len() != 2 {
		t.Fatalf("expected length 2, got %d", buffer.Len())
	}
}

func TestRingBufferWriteLineSanitizes(t *testing.T) {
	buffer := NewRingBuffer(2)
	buffer.WriteLine(server.OutputLine{Text: "\x1b[32mDone\x1b[0m (1.0s)!"})

	if got := buffer.GetLast(1); len(got) != 1 || got[0] != "Done (1.0s)!" {
		t.Fatalf("expected sanitized line, got %v", got)
	}
}
