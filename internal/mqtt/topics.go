package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"roomheat/internal/models"
)

// TopicFilter is the broker subscription covering every valve the system
// can see. Topics that do not match the room naming scheme are dropped at
// parse time.
const TopicFilter = "shellies/#"

const (
	subtopicOnline      = "online"
	subtopicTemperature = "thermostat/0/temperature"
	subtopicTargetT     = "thermostat/0/target_t"
	subtopicBattery     = "sensor/battery"
	subtopicCommand     = "thermostat/0/command/target_t"
)

// Valve topics follow the device naming contract exactly:
// shellies/room-{ROOM_ID}-{LOCATION}-trv with the location tag restricted
// to bedroom, numbered bedroom variants, or bathroom.
var topicRe = regexp.MustCompile(`^shellies/room-(.+)-(bedroom[0-9]*|bathroom)-trv/(.+)$`)

// ReportKind names the subtopic a device report arrived on.
type ReportKind string

const (
	ReportOnline      ReportKind = "online"
	ReportTemperature ReportKind = "temperature"
	ReportSetpoint    ReportKind = "setpoint"
	ReportBattery     ReportKind = "battery"
)

// Report is one decoded device message, ready for the per-valve inbox.
type Report struct {
	Valve  models.ValveID
	Kind   ReportKind
	Online bool    // ReportOnline
	Value  float64 // temperature, setpoint or battery percent
	Origin string  // raw origin tag on setpoint reports, "" when absent
}

// DeviceTopic returns the base topic for a valve.
func DeviceTopic(id models.ValveID) string {
	return fmt.Sprintf("shellies/room-%s-%s-trv", id.Room, id.Location)
}

// CommandTopic returns the setpoint command topic for a valve.
func CommandTopic(id models.ValveID) string {
	return DeviceTopic(id) + "/" + subtopicCommand
}

// EncodeSetpoint renders a command payload the valve firmware accepts: a
// bare number with one decimal.
func EncodeSetpoint(tempC float64) []byte {
	return []byte(strconv.FormatFloat(tempC, 'f', 1, 64))
}

// setpointReport is the JSON body of a target_t status report. Older
// firmware publishes a bare number instead.
type setpointReport struct {
	TargetT float64 `json:"target_t"`
	Origin  string  `json:"origin"`
}

// ParseReport decodes one inbound message. The second return is false for
// topics outside the valve naming scheme, unknown subtopics, and payloads
// that do not decode; such messages carry nothing the system acts on.
func ParseReport(topic string, payload []byte) (Report, bool) {
	m := topicRe.FindStringSubmatch(topic)
	if m == nil {
		return Report{}, false
	}
	r := Report{
		Valve: models.ValveID{
			Room:     models.RoomID(m[1]),
			Location: models.Location(m[2]),
		},
	}

	body := strings.TrimSpace(string(payload))
	switch m[3] {
	case subtopicOnline:
		r.Kind = ReportOnline
		r.Online = body == "true"
		return r, true

	case subtopicTemperature:
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Report{}, false
		}
		r.Kind = ReportTemperature
		r.Value = v
		return r, true

	case subtopicTargetT:
		r.Kind = ReportSetpoint
		var sp setpointReport
		if err := json.Unmarshal(payload, &sp); err == nil {
			r.Value = sp.TargetT
			r.Origin = sp.Origin
			return r, true
		}
		// Bare numeric from older firmware carries no origin tag.
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Report{}, false
		}
		r.Value = v
		return r, true

	case subtopicBattery:
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Report{}, false
		}
		r.Kind = ReportBattery
		r.Value = v
		return r, true
	}
	return Report{}, false
}
