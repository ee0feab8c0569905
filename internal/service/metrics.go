package service

import (
	"roomheat/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricCommandsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomheat_commands_sent_total",
		Help: "Setpoint commands published to valves, including retries.",
	}, []string{"room"})

	metricCommandsAcked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomheat_commands_acked_total",
		Help: "Setpoint commands confirmed by a matching valve report.",
	}, []string{"room"})

	metricCommandsTimedOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomheat_commands_timed_out_total",
		Help: "Command attempts whose acknowledgement window expired.",
	}, []string{"room"})

	metricRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomheat_booking_refreshes_total",
		Help: "Successful booking feed refreshes.",
	})

	metricRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomheat_booking_refresh_failures_total",
		Help: "Booking feed refreshes that failed and kept the previous snapshot.",
	})

	metricIgnoredReports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomheat_ignored_reports_total",
		Help: "Inbound MQTT messages outside the valve topic contract.",
	})

	metricRoomsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomheat_rooms",
		Help: "Rooms per heating state.",
	}, []string{"state"})

	metricValveHealth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomheat_valve_health",
		Help: "Valve health class: 0 healthy, 1 degraded, 2 poor, 3 unresponsive.",
	}, []string{"room", "location"})
)

func init() {
	prometheus.MustRegister(
		metricCommandsSent,
		metricCommandsAcked,
		metricCommandsTimedOut,
		metricRefreshes,
		metricRefreshFailures,
		metricIgnoredReports,
		metricRoomsByState,
		metricValveHealth,
	)
}

var allRoomStates = []models.RoomState{
	models.StateVacant,
	models.StateBooked,
	models.StateHeatingUp,
	models.StateOccupied,
	models.StateCoolingDown,
}

// setRoomStateGauges publishes the per-state room counts, zeroing states
// with no rooms so the series never go stale.
func setRoomStateGauges(states map[models.RoomState]int) {
	for _, st := range allRoomStates {
		metricRoomsByState.WithLabelValues(string(st)).Set(float64(states[st]))
	}
}

func healthGaugeValue(h models.HealthState) float64 {
	switch h {
	case models.HealthDegraded:
		return 1
	case models.HealthPoor:
		return 2
	case models.HealthUnresponsive:
		return 3
	default:
		return 0
	}
}
