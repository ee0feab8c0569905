package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"roomheat/internal/models"
)

// Config mirrors configs/config.yml. Load applies defaults first, so a
// partial file only needs the keys it wants to change.
type Config struct {
	Port     string
	LogLevel string
	DB       DBConfig
	MQTT     MQTTConfig
	Provider ProviderConfig
	Bookings BookingsConfig
	Heating  HeatingConfig
	Dispatch DispatchConfig
	Health   HealthConfig
	Auth     AuthConfig
	Events   EventsConfig
}

// DBConfig holds the sqlite file location.
type DBConfig struct {
	Path string
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// ProviderConfig holds the booking provider API settings.
type ProviderConfig struct {
	BaseURL  string
	APIKey   string
	Region   string
	Username string
	Password string
	Timeout  time.Duration
}

// BookingsConfig controls the polling loop against the provider.
type BookingsConfig struct {
	RefreshInterval time.Duration
	HorizonDays     int
}

// HeatingConfig holds the room defaults applied when a room has no
// per-room override.
type HeatingConfig struct {
	OccupiedTempC    float64
	VacantTempC      float64
	HeatingOffset    time.Duration
	CoolingOffset    time.Duration
	DefaultArrival   time.Duration
	DefaultDeparture time.Duration
	EvaluateInterval time.Duration
	ExcludedRooms    []string
}

// DispatchConfig controls command delivery and retries.
type DispatchConfig struct {
	MaxAttempts           int
	CommandTimeout        time.Duration
	SyncStagger           time.Duration
	AutoRetryUnresponsive bool
	AutoRetryInterval     time.Duration
}

// HealthConfig controls the valve health classifier.
type HealthConfig struct {
	SweepInterval          time.Duration
	SilenceThreshold       time.Duration
	GuestOverrideWindow    time.Duration
	BatteryLowPercent      float64
	BatteryCriticalPercent float64
}

// AuthConfig holds JWT signing settings for the operator API.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// EventsConfig controls retention of the room event log.
type EventsConfig struct {
	Retention time.Duration
}

// Load reads configs/config.yml and returns the resolved configuration.
// Tunables with operational limits are clamped into their allowed range
// rather than rejected.
func Load() (*Config, error) {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return build()
}

func setDefaults() {
	viper.SetDefault("port", "8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("db.path", "roomheat.db")

	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "roomheat")

	viper.SetDefault("provider.timeout", "30s")

	viper.SetDefault("bookings.refresh_interval", "10m")
	viper.SetDefault("bookings.horizon_days", 7)

	viper.SetDefault("heating.occupied_temp", 22.0)
	viper.SetDefault("heating.vacant_temp", 16.0)
	viper.SetDefault("heating.heating_offset", "120m")
	viper.SetDefault("heating.cooling_offset", "-30m")
	viper.SetDefault("heating.default_arrival", "15:00")
	viper.SetDefault("heating.default_departure", "10:00")
	viper.SetDefault("heating.evaluate_interval", "30s")

	viper.SetDefault("dispatch.max_attempts", 10)
	viper.SetDefault("dispatch.command_timeout", "60s")
	viper.SetDefault("dispatch.sync_stagger", "10s")
	viper.SetDefault("dispatch.auto_retry_unresponsive", false)
	viper.SetDefault("dispatch.auto_retry_interval", "6h")

	viper.SetDefault("health.sweep_interval", "1m")
	viper.SetDefault("health.silence_threshold", "30m")
	viper.SetDefault("health.guest_override_window", "60m")
	viper.SetDefault("health.battery_low_percent", 30.0)
	viper.SetDefault("health.battery_critical_percent", 15.0)

	viper.SetDefault("auth.token_ttl", "12h")

	viper.SetDefault("events.retention", "720h")
}

func build() (*Config, error) {
	arrival, err := parseClock(viper.GetString("heating.default_arrival"))
	if err != nil {
		return nil, fmt.Errorf("heating.default_arrival: %w", err)
	}
	departure, err := parseClock(viper.GetString("heating.default_departure"))
	if err != nil {
		return nil, fmt.Errorf("heating.default_departure: %w", err)
	}

	cfg := &Config{
		Port:     viper.GetString("port"),
		LogLevel: viper.GetString("log_level"),
		DB: DBConfig{
			Path: viper.GetString("db.path"),
		},
		MQTT: MQTTConfig{
			Broker:   viper.GetString("mqtt.broker"),
			ClientID: viper.GetString("mqtt.client_id"),
			Username: viper.GetString("mqtt.username"),
			Password: viper.GetString("mqtt.password"),
		},
		Provider: ProviderConfig{
			BaseURL:  viper.GetString("provider.base_url"),
			APIKey:   viper.GetString("provider.api_key"),
			Region:   viper.GetString("provider.region"),
			Username: viper.GetString("provider.username"),
			Password: viper.GetString("provider.password"),
			Timeout:  viper.GetDuration("provider.timeout"),
		},
		Bookings: BookingsConfig{
			RefreshInterval: clampDuration(viper.GetDuration("bookings.refresh_interval"), 5*time.Minute, 60*time.Minute),
			HorizonDays:     viper.GetInt("bookings.horizon_days"),
		},
		Heating: HeatingConfig{
			OccupiedTempC:    viper.GetFloat64("heating.occupied_temp"),
			VacantTempC:      viper.GetFloat64("heating.vacant_temp"),
			HeatingOffset:    viper.GetDuration("heating.heating_offset"),
			CoolingOffset:    viper.GetDuration("heating.cooling_offset"),
			DefaultArrival:   arrival,
			DefaultDeparture: departure,
			EvaluateInterval: viper.GetDuration("heating.evaluate_interval"),
			ExcludedRooms:    viper.GetStringSlice("heating.excluded_rooms"),
		},
		Dispatch: DispatchConfig{
			MaxAttempts:           clampInt(viper.GetInt("dispatch.max_attempts"), 3, 20),
			CommandTimeout:        clampDuration(viper.GetDuration("dispatch.command_timeout"), 30*time.Second, 300*time.Second),
			SyncStagger:           viper.GetDuration("dispatch.sync_stagger"),
			AutoRetryUnresponsive: viper.GetBool("dispatch.auto_retry_unresponsive"),
			AutoRetryInterval:     viper.GetDuration("dispatch.auto_retry_interval"),
		},
		Health: HealthConfig{
			SweepInterval:          viper.GetDuration("health.sweep_interval"),
			SilenceThreshold:       viper.GetDuration("health.silence_threshold"),
			GuestOverrideWindow:    viper.GetDuration("health.guest_override_window"),
			BatteryLowPercent:      viper.GetFloat64("health.battery_low_percent"),
			BatteryCriticalPercent: viper.GetFloat64("health.battery_critical_percent"),
		},
		Auth: AuthConfig{
			SigningKey: viper.GetString("auth.signing_key"),
			TokenTTL:   viper.GetDuration("auth.token_ttl"),
		},
		Events: EventsConfig{
			Retention: viper.GetDuration("events.retention"),
		},
	}
	return cfg, nil
}

// RoomDefaults returns the room configuration applied to rooms without
// a stored override.
func (c *Config) RoomDefaults() models.RoomConfig {
	return models.RoomConfig{
		AutoMode:         true,
		HeatingOffset:    c.Heating.HeatingOffset,
		CoolingOffset:    c.Heating.CoolingOffset,
		OccupiedTempC:    c.Heating.OccupiedTempC,
		VacantTempC:      c.Heating.VacantTempC,
		DefaultArrival:   c.Heating.DefaultArrival,
		DefaultDeparture: c.Heating.DefaultDeparture,
		SyncEnabled:      true,
		ExcludeBathroom:  false,
	}
}

// RoomExcluded reports whether a room is on the exclusion list.
func (c *Config) RoomExcluded(id models.RoomID) bool {
	for _, r := range c.Heating.ExcludedRooms {
		if strings.TrimSpace(r) == string(id) {
			return true
		}
	}
	return false
}

// parseClock parses a "15:04" style time of day into an offset from
// midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
