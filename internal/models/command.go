package models

import "time"

// CommandReason says why a setpoint command was issued.
type CommandReason string

const (
	ReasonTransition CommandReason = "transition" // room state edge
	ReasonForce      CommandReason = "force"      // operator force-temperature
	ReasonSync       CommandReason = "sync"       // operator valve sync
	ReasonRetry      CommandReason = "retry"      // unresponsive-valve retry
)

// CommandOutcome is the lifecycle state of one attempt.
type CommandOutcome string

const (
	OutcomePending      CommandOutcome = "pending"
	OutcomeAcknowledged CommandOutcome = "acknowledged"
	OutcomeTimedOut     CommandOutcome = "timed_out"
	OutcomeExhausted    CommandOutcome = "exhausted"
)

// Command is one logical setpoint request for a valve. A newer command for
// the same valve supersedes the pending one; the superseded attempt is
// cancelled without counting as a failure.
type Command struct {
	Valve     ValveID       `json:"valve"`
	TargetC   float64       `json:"target_c"`
	Reason    CommandReason `json:"reason"`
	DecidedAt time.Time     `json:"decided_at"` // when the automation decided; guest events after this win
}

// CommandAttempt is one send of a Command.
type CommandAttempt struct {
	Command
	Attempt     int            `json:"attempt"` // 1-based
	SentAt      time.Time      `json:"sent_at"`
	NextRetryAt time.Time      `json:"next_retry_at,omitempty"`
	Outcome     CommandOutcome `json:"outcome"`
}
