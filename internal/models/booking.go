package models

import (
	"strings"
	"time"
)

// BookingStatus is the provider's booking status, normalized to lowercase.
type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusUnconfirmed BookingStatus = "unconfirmed"
	StatusArrived     BookingStatus = "arrived"
	StatusDeparted    BookingStatus = "departed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusNoShow      BookingStatus = "no_show"
)

// NormalizeStatus lowercases and trims a provider status string. PMS-side
// capitalization drifts; comparisons are case-insensitive by contract.
func NormalizeStatus(s string) BookingStatus {
	return BookingStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Active reports whether the status keeps heating automation interested:
// confirmed, unconfirmed or arrived. Everything else is treated as no
// booking.
func (s BookingStatus) Active() bool {
	switch s {
	case StatusConfirmed, StatusUnconfirmed, StatusArrived:
		return true
	}
	return false
}

// Booking is the normalized booking fact set for one room.
//
// ArrivalDate/DepartureDate are always set (midnight of the stay boundary
// days). Arrival/Departure carry the provider's explicit datetimes and are
// nil when the provider only supplied a date.
type Booking struct {
	Reference     string        `json:"reference"`
	RoomID        RoomID        `json:"room_id"`
	Status        BookingStatus `json:"status"`
	Arrival       *time.Time    `json:"arrival,omitempty"`
	Departure     *time.Time    `json:"departure,omitempty"`
	ArrivalDate   time.Time     `json:"arrival_date"`
	DepartureDate time.Time     `json:"departure_date"`
	GuestName     string        `json:"guest_name,omitempty"`
	Adults        int           `json:"adults,omitempty"`
	Children      int           `json:"children,omitempty"`
}

// TotalNights is the booked stay length in nights.
func (b Booking) TotalNights() int {
	n := int(b.DepartureDate.Sub(b.ArrivalDate).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// CurrentNight is the 1-based night of the stay at now, or 0 outside it.
func (b Booking) CurrentNight(now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if today.Before(b.ArrivalDate) || !today.Before(b.DepartureDate) {
		return 0
	}
	return int(today.Sub(b.ArrivalDate).Hours()/24) + 1
}

// Expired reports whether the booking's departure lies more than one day
// in the past; expired bookings are excluded from room-state selection.
func (b Booking) Expired(now time.Time) bool {
	dep := b.DepartureDate
	if b.Departure != nil && b.Departure.After(dep) {
		dep = *b.Departure
	}
	return now.Sub(dep) > 24*time.Hour
}

// Snapshot is one refresh result: the current booking per room plus the
// provider room catalog, stamped with the fetch time. A failed refresh
// keeps the previous snapshot (stale-but-available).
type Snapshot struct {
	Bookings  map[RoomID]Booking `json:"bookings"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Site is a provider room-catalog entry.
type Site struct {
	ID       RoomID `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
}
