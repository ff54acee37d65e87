package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
auth:
  signing_key: "k"
controller:
  move_deadline: 45s
schedule:
  open_at: "06:30"
  close_at: "21:15"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port: got %q", cfg.Port)
	}
	if cfg.Controller.MoveDeadline != 45*time.Second {
		t.Fatalf("move_deadline: got %v", cfg.Controller.MoveDeadline)
	}
	if cfg.Controller.TickInterval != 5*time.Second {
		t.Fatalf("tick_interval default: got %v", cfg.Controller.TickInterval)
	}
	if cfg.Sensor.PositionDebounceSamples != 3 {
		t.Fatalf("debounce samples default: got %d", cfg.Sensor.PositionDebounceSamples)
	}
	if cfg.Schedule.CloseOffset != 30*time.Minute {
		t.Fatalf("close_offset default: got %v", cfg.Schedule.CloseOffset)
	}
	if cfg.Hardware.Driver != DriverSim {
		t.Fatalf("driver default: got %q", cfg.Hardware.Driver)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "auth:\n  signing_key: \"k\"\n")
	t.Setenv("COOPDOOR_CONTROLLER_FAULT_THRESHOLD", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Controller.FaultThreshold != 5 {
		t.Fatalf("fault_threshold: got %d, want 5", cfg.Controller.FaultThreshold)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing signing key",
			body:    "port: \"1\"\n",
			wantErr: "auth.signing_key",
		},
		{
			name:    "close before open",
			body:    "auth:\n  signing_key: k\nschedule:\n  open_at: \"20:00\"\n  close_at: \"07:00\"\n",
			wantErr: "close_at must be after",
		},
		{
			name:    "bad clock",
			body:    "auth:\n  signing_key: k\nschedule:\n  open_at: \"7am\"\n",
			wantErr: "expected HH:MM",
		},
		{
			name:    "inverted light thresholds",
			body:    "auth:\n  signing_key: k\nlight:\n  enabled: true\n  open_above: 5\n  close_below: 10\n",
			wantErr: "light.close_below",
		},
		{
			name:    "unknown mode",
			body:    "auth:\n  signing_key: k\nschedule:\n  mode: lunar\n",
			wantErr: "unknown schedule.mode",
		},
		{
			name:    "gpio without pins",
			body:    "auth:\n  signing_key: k\nhardware:\n  driver: gpio\n",
			wantErr: "gpio driver needs",
		},
		{
			name:    "table without file",
			body:    "auth:\n  signing_key: k\nschedule:\n  mode: table\n",
			wantErr: "table_file",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("06:45")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if got != 6*time.Hour+45*time.Minute {
		t.Fatalf("got %v", got)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected error for 25:00")
	}
}
