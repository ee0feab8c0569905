package service

import (
	"context"
	"fmt"
	"time"

	"roomheat/internal/heating"
	"roomheat/internal/logger"
	"roomheat/internal/models"
	"roomheat/internal/mqtt"
	"roomheat/internal/registry"
	"roomheat/internal/repository"
)

// Listener routes inbound valve reports: telemetry into the registry,
// setpoint reports additionally to the source classifier and the
// dispatcher's ack matching. Valves self-register on first report.
type Listener struct {
	reg             *registry.Registry
	dispatcher      *Dispatcher
	events          repository.EventRepo
	log             *logger.Logger
	batteryLow      float64
	batteryCritical float64
	nowFn           func() time.Time
}

func NewListener(reg *registry.Registry, dispatcher *Dispatcher, events repository.EventRepo,
	batteryLow, batteryCritical float64, log *logger.Logger) *Listener {
	return &Listener{
		reg:             reg,
		dispatcher:      dispatcher,
		events:          events,
		log:             log,
		batteryLow:      batteryLow,
		batteryCritical: batteryCritical,
		nowFn:           time.Now,
	}
}

// Handle is the broker subscription callback.
func (l *Listener) Handle(topic string, payload []byte) {
	rep, ok := mqtt.ParseReport(topic, payload)
	if !ok {
		metricIgnoredReports.Inc()
		l.log.Debugw("ignoring message", "topic", topic)
		return
	}
	if l.reg.EnsureValve(rep.Valve) {
		l.log.Infow("valve discovered", "valve", rep.Valve.String())
	}

	switch rep.Kind {
	case mqtt.ReportOnline:
		l.reg.RecordOnline(rep.Valve, rep.Online)
		if !rep.Online {
			l.log.Warnw("valve went offline", "valve", rep.Valve.String())
		}

	case mqtt.ReportTemperature:
		l.reg.RecordTemperature(rep.Valve, rep.Value)

	case mqtt.ReportSetpoint:
		l.handleSetpoint(rep)

	case mqtt.ReportBattery:
		prev := l.reg.RecordBattery(rep.Valve, rep.Value)
		l.checkBattery(rep.Valve, prev, rep.Value)
	}
}

func (l *Listener) handleSetpoint(rep mqtt.Report) {
	src := heating.ClassifySource(rep.Origin)
	l.reg.RecordSetpoint(rep.Valve, rep.Value, src)

	if src == models.SourceGuest {
		l.log.Infow("guest adjusted setpoint",
			"valve", rep.Valve.String(), "setpoint_c", rep.Value)
		l.appendEvent(models.RoomEvent{
			RoomID:      rep.Valve.Room,
			Type:        models.EventGuestAdjustment,
			Description: fmt.Sprintf("guest set valve %s to %.1f", rep.Valve.String(), rep.Value),
			Metadata:    map[string]any{"location": rep.Valve.Location, "setpoint_c": rep.Value},
		})
	}

	// Any matching report acknowledges the pending command, whoever sent
	// it; the valve holds the value either way.
	l.dispatcher.HandleAck(rep.Valve, rep.Value, l.nowFn())
}

// checkBattery logs once per downward threshold crossing. A zero previous
// value means this is the first report.
func (l *Listener) checkBattery(id models.ValveID, prev, now float64) {
	crossed := func(threshold float64) bool {
		return now <= threshold && (prev == 0 || prev > threshold)
	}
	switch {
	case crossed(l.batteryCritical):
		l.log.Errorw("valve battery critical", "valve", id.String(), "percent", now)
		l.appendEvent(models.RoomEvent{
			RoomID:      id.Room,
			Type:        models.EventBatteryLow,
			Description: fmt.Sprintf("valve %s battery critically low at %.0f%%", id.String(), now),
			Metadata:    map[string]any{"location": id.Location, "percent": now, "critical": true},
		})
	case crossed(l.batteryLow):
		l.log.Warnw("valve battery low", "valve", id.String(), "percent", now)
		l.appendEvent(models.RoomEvent{
			RoomID:      id.Room,
			Type:        models.EventBatteryLow,
			Description: fmt.Sprintf("valve %s battery low at %.0f%%", id.String(), now),
			Metadata:    map[string]any{"location": id.Location, "percent": now},
		})
	}
}

func (l *Listener) appendEvent(e models.RoomEvent) {
	if err := l.events.Append(context.Background(), e); err != nil {
		l.log.Errorw("append event", "type", e.Type, "error", err)
	}
}
