package models

import "time"

// HealthState is the four-level device health classification.
type HealthState string

const (
	HealthHealthy      HealthState = "healthy"
	HealthDegraded     HealthState = "degraded"
	HealthPoor         HealthState = "poor"
	HealthUnresponsive HealthState = "unresponsive"
)

// Valve is the observable record of one TRV. Command/counter state is
// owned by the per-valve dispatch actor; this struct is the registry's
// display copy handed out by value.
type Valve struct {
	ID                ValveID     `json:"id"`
	Online            bool        `json:"online"`
	CurrentTempC      float64     `json:"current_temp_c,omitempty"`
	BatteryPercent    float64     `json:"battery_percent,omitempty"`
	LastKnownSetpoint float64     `json:"last_known_setpoint,omitempty"`
	LastSeen          time.Time   `json:"last_seen,omitempty"`
	LastAckAt         time.Time   `json:"last_ack_at,omitempty"`
	Health            HealthState `json:"health"`
}

// ValveHealth is the counter set the health classifier reads, persisted
// so the classification survives a restart.
type ValveHealth struct {
	Valve               ValveID       `json:"valve"`
	State               HealthState   `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RetriesLast24h      int           `json:"retries_last_24h"`
	LastAckAt           time.Time     `json:"last_ack_at,omitempty"`
	LastAttemptAt       time.Time     `json:"last_attempt_at,omitempty"`
	PendingSince        time.Time     `json:"pending_since,omitempty"` // oldest un-acked attempt
	AvgResponse         time.Duration `json:"avg_response,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// HealthSummary aggregates valve counts per class.
type HealthSummary struct {
	Healthy      int `json:"healthy"`
	Degraded     int `json:"degraded"`
	Poor         int `json:"poor"`
	Unresponsive int `json:"unresponsive"`
	Total        int `json:"total"`
}

// SourceClass labels who initiated an inbound setpoint change.
type SourceClass string

const (
	SourceGuest      SourceClass = "guest"
	SourceAutomation SourceClass = "automation"
	SourceUnknown    SourceClass = "unknown"
)

// GuestAdjustment records a guest-initiated setpoint change on one valve.
// While the room stays occupied the automation must not revert it.
type GuestAdjustment struct {
	Valve     ValveID   `json:"valve"`
	SetpointC float64   `json:"setpoint_c"`
	At        time.Time `json:"at"`
}
