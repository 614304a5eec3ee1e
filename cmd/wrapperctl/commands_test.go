package main

import (
	"testing"
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/models"
)

func TestFormatEvent(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
	tests := []struct {
		ev   models.EventMessage
		want string
	}{
		{models.EventMessage{Kind: "event", Type: "player_joined", Player: "Alice", Time: at}, "12:00:00 player_joined Alice"},
		{models.EventMessage{Kind: "state", From: "running", To: "stopping", Reason: "shutdown", Time: at}, "12:00:00 state running -> stopping (shutdown)"},
		{models.EventMessage{Kind: "input", Producer: "http", Text: "list", Time: at}, "12:00:00 input [http] list"},
	}
	for _, tt := range tests {
		if got := formatEvent(tt.ev); got != tt.want {
			t.Fatalf("formatEvent() = %q, want %q", got, tt.want)
		}
	}
}

func TestSendRequiresLine(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"send"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected an error without a command line")
	}
}

func TestDialOptions(t *testing.T) {
	plain := &options{}
	opts, err := plain.dialOptions()
	if err != nil || len(opts) != 0 {
		t.Fatalf("expected no dial options for plaintext, got %d (%v)", len(opts), err)
	}

	secure := &options{insecure: true}
	opts, err = secure.dialOptions()
	if err != nil || len(opts) != 1 {
		t.Fatalf("expected TLS credentials, got %d (%v)", len(opts), err)
	}

	missing := &options{tls: true, caFile: "/nonexistent/ca.pem"}
	if _, err := missing.dialOptions(); err == nil {
		t.Fatal("expected error for unreadable CA file")
	}
}
