package server

import "time"

// State is the lifecycle state of the supervised process.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateStopped
	StateCrashed
)

// Status strings used in API payloads and metrics labels.
const (
	StatusNotStarted = "not_started"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusStopped    = "stopped"
	StatusCrashed    = "crashed"
)

// States lists every state in declaration order.
var States = []State{StateNotStarted, StateRunning, StateStopping, StateStopped, StateCrashed}

func (s State) String() string {
	switch s {
	case StateRunning:
		return StatusRunning
	case StateStopping:
		return StatusStopping
	case StateStopped:
		return StatusStopped
	case StateCrashed:
		return StatusCrashed
	default:
		return StatusNotStarted
	}
}

// PendingOp is the orchestration currently holding the process.
type PendingOp int

const (
	PendingNone PendingOp = iota
	PendingShutdown
	PendingBackup
)

func (p PendingOp) String() string {
	switch p {
	case PendingShutdown:
		return "stopping_for_shutdown"
	case PendingBackup:
		return "stopping_for_backup"
	default:
		return "none"
	}
}

// Transition records a state change.
type Transition struct {
	From    State
	To      State
	Pending PendingOp
	Reason  string
	At      time.Time
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State       string     `json:"state"`
	Pending     string     `json:"pending"`
	PID         int        `json:"pid,omitempty"`
	Ready       bool       `json:"ready"`
	Generation  uint64     `json:"generation"`
	PlayerCount int        `json:"player_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	Uptime      string     `json:"uptime,omitempty"`
	LastExit    string     `json:"last_exit,omitempty"`
}
