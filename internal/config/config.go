package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envConfigFile names the environment variable that points at an explicit config file.
const envConfigFile = "COOPDOOR_CONFIG"

// Config is the immutable parameter set for the process lifetime.
// It is loaded once at startup and passed by value into constructors.
type Config struct {
	Port       string           `mapstructure:"port"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Controller ControllerConfig `mapstructure:"controller"`
	Sensor     SensorConfig     `mapstructure:"sensor"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Light      LightConfig      `mapstructure:"light"`
	Hardware   HardwareConfig   `mapstructure:"hardware"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	InfluxDB   InfluxDBConfig   `mapstructure:"influxdb"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Dir enables an hourly rolling JSON log file next to stdout. Empty disables it.
	Dir string `mapstructure:"dir"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// ControllerConfig tunes the door state machine.
type ControllerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	MoveDeadline    time.Duration `mapstructure:"move_deadline"`
	MismatchWindow  time.Duration `mapstructure:"mismatch_window"`
	FaultThreshold  int           `mapstructure:"fault_threshold"`
	FaultWindow     time.Duration `mapstructure:"fault_window"`
	PersistAttempts int           `mapstructure:"persist_attempts"`
	ResumeWindow    time.Duration `mapstructure:"resume_window"`
}

// SensorConfig tunes debouncing and smoothing in sensor fusion.
type SensorConfig struct {
	PositionDebounce        time.Duration `mapstructure:"position_debounce"`
	PositionDebounceSamples int           `mapstructure:"position_debounce_samples"`
	LightSamples            int           `mapstructure:"light_samples"`
	LightTolerance          float64       `mapstructure:"light_tolerance"`
	LightAlpha              float64       `mapstructure:"light_alpha"`
	StaleAfter              time.Duration `mapstructure:"stale_after"`
}

// ScheduleConfig selects how the daily open/close window is computed.
type ScheduleConfig struct {
	Mode        string        `mapstructure:"mode"` // fixed | sun | table
	OpenAt      string        `mapstructure:"open_at"`
	CloseAt     string        `mapstructure:"close_at"`
	OpenOffset  time.Duration `mapstructure:"open_offset"`
	CloseOffset time.Duration `mapstructure:"close_offset"`
	DeadZone    time.Duration `mapstructure:"dead_zone"`
	TableFile   string        `mapstructure:"table_file"`
	Timezone    string        `mapstructure:"timezone"`
	Latitude    float64       `mapstructure:"latitude"`
	Longitude   float64       `mapstructure:"longitude"`
}

type LightConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	OpenAbove  float64 `mapstructure:"open_above"`
	CloseBelow float64 `mapstructure:"close_below"`
}

// HardwareConfig describes the actuator and sensor wiring.
type HardwareConfig struct {
	Driver          string        `mapstructure:"driver"` // gpio | sim
	ExtendPin       string        `mapstructure:"extend_pin"`
	RetractPin      string        `mapstructure:"retract_pin"`
	OpenSwitchPin   string        `mapstructure:"open_switch_pin"`
	ClosedSwitchPin string        `mapstructure:"closed_switch_pin"`
	FaultPin        string        `mapstructure:"fault_pin"`
	RelayActiveLow  bool          `mapstructure:"relay_active_low"`
	LightFile       string        `mapstructure:"light_file"`
	LightScale      float64       `mapstructure:"light_scale"`
	SimTravelTime   time.Duration `mapstructure:"sim_travel_time"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	DoorID      string `mapstructure:"door_id"`
	QoS         int    `mapstructure:"qos"`
}

type InfluxDBConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	Bucket        string `mapstructure:"bucket"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval"` // seconds
}

// Schedule modes.
const (
	ScheduleFixed = "fixed"
	ScheduleSun   = "sun"
	ScheduleTable = "table"
)

// Hardware drivers.
const (
	DriverGPIO = "gpio"
	DriverSim  = "sim"
)

// Load reads configuration from path, or from configs/config.yml when path is empty.
// COOPDOOR_CONFIG overrides an empty path; COOPDOOR_* env vars override keys.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(envConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("COOPDOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("db.path", "coop_door.db")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("controller.tick_interval", 5*time.Second)
	v.SetDefault("controller.move_deadline", 30*time.Second)
	v.SetDefault("controller.mismatch_window", 10*time.Second)
	v.SetDefault("controller.fault_threshold", 3)
	v.SetDefault("controller.fault_window", 24*time.Hour)
	v.SetDefault("controller.persist_attempts", 3)
	v.SetDefault("controller.resume_window", 20*time.Second)

	v.SetDefault("sensor.position_debounce", time.Second)
	v.SetDefault("sensor.position_debounce_samples", 3)
	v.SetDefault("sensor.light_samples", 3)
	v.SetDefault("sensor.light_tolerance", 5.0)
	v.SetDefault("sensor.light_alpha", 0.3)
	v.SetDefault("sensor.stale_after", 30*time.Second)

	v.SetDefault("schedule.mode", ScheduleFixed)
	v.SetDefault("schedule.open_at", "07:00")
	v.SetDefault("schedule.close_at", "20:00")
	v.SetDefault("schedule.close_offset", 30*time.Minute)
	v.SetDefault("schedule.dead_zone", 90*time.Second)
	v.SetDefault("schedule.timezone", "Local")

	v.SetDefault("light.open_above", 40.0)
	v.SetDefault("light.close_below", 10.0)

	v.SetDefault("hardware.driver", DriverSim)
	v.SetDefault("hardware.light_scale", 1.0)
	v.SetDefault("hardware.sim_travel_time", 12*time.Second)

	v.SetDefault("mqtt.client_id", "coop-door")
	v.SetDefault("mqtt.topic_prefix", "coopdoor")
	v.SetDefault("mqtt.door_id", "main")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval", 10)
}

// Validate rejects parameter sets the controller cannot run with.
func (c Config) Validate() error {
	var errs []error

	positive := map[string]time.Duration{
		"controller.tick_interval":   c.Controller.TickInterval,
		"controller.move_deadline":   c.Controller.MoveDeadline,
		"controller.mismatch_window": c.Controller.MismatchWindow,
		"controller.fault_window":    c.Controller.FaultWindow,
		"controller.resume_window":   c.Controller.ResumeWindow,
		"sensor.stale_after":         c.Sensor.StaleAfter,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}
	if c.Controller.FaultThreshold < 1 {
		errs = append(errs, errors.New("controller.fault_threshold must be >= 1"))
	}
	if c.Controller.PersistAttempts < 1 {
		errs = append(errs, errors.New("controller.persist_attempts must be >= 1"))
	}
	if c.Sensor.PositionDebounce < 0 || c.Sensor.PositionDebounceSamples < 1 {
		errs = append(errs, errors.New("sensor position debounce must be >= 0 and samples >= 1"))
	}
	if c.Sensor.LightSamples < 1 || c.Sensor.LightTolerance < 0 {
		errs = append(errs, errors.New("sensor.light_samples must be >= 1 and light_tolerance >= 0"))
	}
	if c.Sensor.LightAlpha <= 0 || c.Sensor.LightAlpha > 1 {
		errs = append(errs, errors.New("sensor.light_alpha must be in (0, 1]"))
	}
	if c.Schedule.DeadZone < 0 {
		errs = append(errs, errors.New("schedule.dead_zone must be >= 0"))
	}
	if c.Light.Enabled && c.Light.CloseBelow >= c.Light.OpenAbove {
		errs = append(errs, fmt.Errorf("light.close_below (%.1f) must be below light.open_above (%.1f)",
			c.Light.CloseBelow, c.Light.OpenAbove))
	}
	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.Schedule.Mode {
	case ScheduleFixed:
		open, err1 := ParseClock(c.Schedule.OpenAt)
		closeAt, err2 := ParseClock(c.Schedule.CloseAt)
		if err := errors.Join(err1, err2); err != nil {
			errs = append(errs, err)
		} else if closeAt <= open {
			errs = append(errs, errors.New("schedule.close_at must be after schedule.open_at"))
		}
	case ScheduleSun:
		if c.Schedule.Latitude < -90 || c.Schedule.Latitude > 90 ||
			c.Schedule.Longitude < -180 || c.Schedule.Longitude > 180 {
			errs = append(errs, errors.New("schedule latitude/longitude out of range"))
		}
	case ScheduleTable:
		if c.Schedule.TableFile == "" {
			errs = append(errs, errors.New("schedule.table_file is required for table mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown schedule.mode %q", c.Schedule.Mode))
	}

	switch c.Hardware.Driver {
	case DriverSim:
		if c.Hardware.SimTravelTime <= 0 {
			errs = append(errs, errors.New("hardware.sim_travel_time must be > 0"))
		}
	case DriverGPIO:
		if c.Hardware.ExtendPin == "" || c.Hardware.RetractPin == "" ||
			c.Hardware.OpenSwitchPin == "" || c.Hardware.ClosedSwitchPin == "" {
			errs = append(errs, errors.New("gpio driver needs extend, retract, open and closed switch pins"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown hardware.driver %q", c.Hardware.Driver))
	}

	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1 or 2"))
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, errors.New("influxdb.url and influxdb.bucket are required when influxdb is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves the schedule timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ParseClock parses "HH:MM" into an offset from local midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
