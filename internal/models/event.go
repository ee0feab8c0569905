package models

import "time"

// Event types recorded in the room event log.
const (
	EventStateChange       = "STATE_CHANGE"
	EventCommandSent       = "COMMAND_SENT"
	EventCommandAck        = "COMMAND_ACK"
	EventCommandTimeout    = "COMMAND_TIMEOUT"
	EventValveUnresponsive = "VALVE_UNRESPONSIVE"
	EventValveRecovered    = "VALVE_RECOVERED"
	EventGuestAdjustment   = "GUEST_ADJUSTMENT"
	EventBookingRefresh    = "BOOKING_REFRESH"
	EventBatteryLow        = "BATTERY_LOW"
	EventForced            = "FORCED"
	EventAutoMode          = "AUTO_MODE"
	EventScheduleError     = "SCHEDULE_ERROR"
)

// EventQuery filters a room event log listing. Zero values mean no
// constraint; Limit 0 means no cap.
type EventQuery struct {
	From   time.Time
	To     time.Time
	RoomID RoomID
	Type   string
	Limit  int
}

// RoomEvent is a single log entry. RoomID is empty for system-wide events
// (e.g. a booking refresh).
type RoomEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	RoomID      RoomID    `json:"room_id,omitempty"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
