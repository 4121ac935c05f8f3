// Package lifecycle runs the ordered startup phases of an application
package lifecycle

import (
	"time"
)

// Phase is one step of application startup
type Phase string

const (
	PhaseConfiguration Phase = "CONFIGURATION" // read settings, activate plugins
	PhaseSetup         Phase = "SETUP"         // build routing tables, open resources
	PhaseStart         Phase = "START"         // start serving
	PhasePostStart     Phase = "POST_START"    // work that needs a running server
)

// Sequence returns the phases in the order Run fires them.
func Sequence() []Phase {
	return []Phase{PhaseConfiguration, PhaseSetup, PhaseStart, PhasePostStart}
}

func (p Phase) label() string {
	switch p {
	case PhaseConfiguration:
		return "configuration"
	case PhaseSetup:
		return "setup"
	case PhaseStart:
		return "start"
	case PhasePostStart:
		return "post start"
	}
	return string(p)
}

// Status represents the status of a phase record
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record represents the outcome of running one phase
type Record struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	Phase     Phase         `json:"phase"`
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Observer is called with every record as it is produced
type Observer func(rec Record)
