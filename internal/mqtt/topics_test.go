package mqtt

import (
	"testing"

	"roomheat/internal/models"
)

func TestDeviceAndCommandTopics(t *testing.T) {
	t.Parallel()

	valve := models.ValveID{Room: "7", Location: models.LocationBedroom}

	if got := DeviceTopic(valve); got != "shellies/room-7-bedroom-trv" {
		t.Errorf("DeviceTopic = %q", got)
	}
	if got := CommandTopic(valve); got != "shellies/room-7-bedroom-trv/thermostat/0/command/target_t" {
		t.Errorf("CommandTopic = %q", got)
	}
}

func TestEncodeSetpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		temp float64
		want string
	}{
		{22.0, "22.0"},
		{16.5, "16.5"},
		{5.0, "5.0"},
	}
	for _, tc := range tests {
		if got := string(EncodeSetpoint(tc.temp)); got != tc.want {
			t.Errorf("EncodeSetpoint(%v) = %q, want %q", tc.temp, got, tc.want)
		}
	}
}

func TestParseReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		topic   string
		payload string
		want    Report
		ok      bool
	}{
		{
			name:    "online true",
			topic:   "shellies/room-7-bedroom-trv/online",
			payload: "true",
			want: Report{
				Valve:  models.ValveID{Room: "7", Location: "bedroom"},
				Kind:   ReportOnline,
				Online: true,
			},
			ok: true,
		},
		{
			name:    "online false",
			topic:   "shellies/room-7-bedroom-trv/online",
			payload: "false",
			want: Report{
				Valve: models.ValveID{Room: "7", Location: "bedroom"},
				Kind:  ReportOnline,
			},
			ok: true,
		},
		{
			name:    "temperature",
			topic:   "shellies/room-12-bathroom-trv/thermostat/0/temperature",
			payload: "19.4",
			want: Report{
				Valve: models.ValveID{Room: "12", Location: "bathroom"},
				Kind:  ReportTemperature,
				Value: 19.4,
			},
			ok: true,
		},
		{
			name:    "setpoint with origin",
			topic:   "shellies/room-7-bedroom-trv/thermostat/0/target_t",
			payload: `{"target_t": 24.0, "origin": "button"}`,
			want: Report{
				Valve:  models.ValveID{Room: "7", Location: "bedroom"},
				Kind:   ReportSetpoint,
				Value:  24.0,
				Origin: "button",
			},
			ok: true,
		},
		{
			name:    "setpoint bare numeric",
			topic:   "shellies/room-7-bedroom-trv/thermostat/0/target_t",
			payload: "21.5",
			want: Report{
				Valve: models.ValveID{Room: "7", Location: "bedroom"},
				Kind:  ReportSetpoint,
				Value: 21.5,
			},
			ok: true,
		},
		{
			name:    "battery",
			topic:   "shellies/room-3-bedroom2-trv/sensor/battery",
			payload: "28",
			want: Report{
				Valve: models.ValveID{Room: "3", Location: "bedroom2"},
				Kind:  ReportBattery,
				Value: 28,
			},
			ok: true,
		},
		{
			name:    "hyphenated room id",
			topic:   "shellies/room-annex-2-bedroom-trv/online",
			payload: "true",
			want: Report{
				Valve:  models.ValveID{Room: "annex-2", Location: "bedroom"},
				Kind:   ReportOnline,
				Online: true,
			},
			ok: true,
		},
		{
			name:    "foreign shelly device",
			topic:   "shellies/shellytrv-8CF681/online",
			payload: "true",
			ok:      false,
		},
		{
			name:    "unknown subtopic",
			topic:   "shellies/room-7-bedroom-trv/info",
			payload: "{}",
			ok:      false,
		},
		{
			name:    "garbage temperature",
			topic:   "shellies/room-7-bedroom-trv/thermostat/0/temperature",
			payload: "warm",
			ok:      false,
		},
		{
			name:    "garbage setpoint",
			topic:   "shellies/room-7-bedroom-trv/thermostat/0/target_t",
			payload: `{"target_t": "warm"}`,
			ok:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseReport(tc.topic, []byte(tc.payload))
			if ok != tc.ok {
				t.Fatalf("ParseReport ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if got != tc.want {
				t.Errorf("ParseReport = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNormalizeBroker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"tcp://broker:1883", "tcp://broker:1883", false},
		{"mqtt://broker:1883", "tcp://broker:1883", false},
		{"ssl://broker:8883", "ssl://broker:8883", false},
		{"mqtts://broker:8883", "ssl://broker:8883", false},
		{"ws://broker:9001/mqtt", "ws://broker:9001/mqtt", false},
		{"ftp://broker", "", true},
	}

	for _, tc := range tests {
		got, err := normalizeBroker(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeBroker(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeBroker(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeBroker(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
