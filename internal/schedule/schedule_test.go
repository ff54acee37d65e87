package schedule

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/models"
)

var day = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func clock(h, m, s int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func fixedPlanner(t *testing.T, deadZone time.Duration, light *LightPolicy) *Planner {
	t.Helper()
	src, err := NewFixedSource(7*time.Hour, 20*time.Hour, time.UTC)
	if err != nil {
		t.Fatalf("NewFixedSource: %v", err)
	}
	return NewPlanner(src, light, NewGovernor(deadZone, time.UTC), time.UTC, nil)
}

func TestFixedSource_Window(t *testing.T) {
	src, _ := NewFixedSource(7*time.Hour, 20*time.Hour+30*time.Minute, time.UTC)
	w, err := src.Window(clock(12, 0, 0))
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if !w.OpenAt.Equal(clock(7, 0, 0)) || !w.CloseAt.Equal(clock(20, 30, 0)) {
		t.Fatalf("unexpected window %+v", w)
	}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{clock(6, 59, 59), false},
		{clock(7, 0, 0), true},
		{clock(20, 29, 59), true},
		{clock(20, 30, 0), false},
	}
	for _, c := range cases {
		if got := w.Contains(c.at); got != c.want {
			t.Fatalf("Contains(%s)=%v, want %v", c.at.Format("15:04:05"), got, c.want)
		}
	}

	if _, err := NewFixedSource(20*time.Hour, 7*time.Hour, time.UTC); !errors.Is(err, ErrInvalidSpan) {
		t.Fatalf("expected ErrInvalidSpan, got %v", err)
	}
}

func TestSunSource_WindowAroundSunriseSunset(t *testing.T) {
	// London, midsummer
	src := NewSunSource(51.5, -0.12, 0, 30*time.Minute, time.UTC)
	w, err := src.Window(time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.OpenAt.Hour() < 3 || w.OpenAt.Hour() > 5 {
		t.Fatalf("unexpected sunrise %s", w.OpenAt)
	}
	if w.CloseAt.Hour() < 20 || w.CloseAt.Hour() > 21 {
		t.Fatalf("unexpected sunset+grace %s", w.CloseAt)
	}
}

func TestSunSource_PolarNight(t *testing.T) {
	src := NewSunSource(78.2, 15.6, 0, 0, time.UTC)
	_, err := src.Window(time.Date(2025, 12, 21, 12, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNoSunEvent) {
		t.Fatalf("expected ErrNoSunEvent, got %v", err)
	}
}

func TestTableSource_LoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sun.json")
	body := `[{"sunrise": 25200, "sunset": 72000}, {"sunrise": 25140, "sunset": 72060}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := LoadTableSource(path, 0, 30*time.Minute, time.UTC)
	if err != nil {
		t.Fatalf("LoadTableSource: %v", err)
	}

	jan2 := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	w, _ := src.Window(jan2)
	if !w.OpenAt.Equal(time.Date(2025, 1, 2, 6, 59, 0, 0, time.UTC)) {
		t.Fatalf("open: %s", w.OpenAt)
	}
	if !w.CloseAt.Equal(time.Date(2025, 1, 2, 20, 31, 0, 0, time.UTC)) {
		t.Fatalf("close with grace: %s", w.CloseAt)
	}

	// days past the end of the table reuse the last entry
	dec := time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)
	if w, _ := src.Window(dec); w.OpenAt.Hour() != 6 || w.OpenAt.Minute() != 59 {
		t.Fatalf("clamped entry: %s", w.OpenAt)
	}
}

func TestTableSource_Rejects(t *testing.T) {
	if _, err := NewTableSource(nil, 0, 0, time.UTC); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	bad := []TableEntry{{Sunrise: 70000, Sunset: 20000}}
	if _, err := NewTableSource(bad, 0, 0, time.UTC); !errors.Is(err, ErrInvalidSpan) {
		t.Fatalf("expected ErrInvalidSpan, got %v", err)
	}
}

func TestPlanner_FollowsWindow(t *testing.T) {
	p := fixedPlanner(t, 0, nil)
	r := models.SensorReading{Stale: true}

	steps := []struct {
		at   time.Time
		want models.TargetState
	}{
		{clock(6, 0, 0), models.TargetClosed},
		{clock(7, 0, 0), models.TargetOpen},
		{clock(19, 59, 0), models.TargetOpen},
		{clock(20, 0, 0), models.TargetClosed},
	}
	for _, s := range steps {
		if got := p.Target(s.at, r); got != s.want {
			t.Fatalf("%s: got %s, want %s", s.at.Format("15:04"), got, s.want)
		}
	}
}

func TestPlanner_DeadZoneDelaysBoundary(t *testing.T) {
	p := fixedPlanner(t, 90*time.Second, nil)
	r := models.SensorReading{Stale: true}

	p.Target(clock(6, 59, 0), r)
	for _, at := range []time.Time{clock(7, 0, 0), clock(7, 0, 5), clock(7, 1, 25)} {
		if got := p.Target(at, r); got != models.TargetClosed {
			t.Fatalf("%s: flipped inside dead zone: %s", at.Format("15:04:05"), got)
		}
	}
	if got := p.Target(clock(7, 1, 30), r); got != models.TargetOpen {
		t.Fatalf("expected Open once dead zone elapsed, got %s", got)
	}
}

func TestPlanner_LightHysteresisDoesNotChatter(t *testing.T) {
	light := NewLightPolicy(config.LightConfig{Enabled: true, OpenAbove: 40, CloseBelow: 10})
	p := fixedPlanner(t, 90*time.Second, light)

	reading := func(lux float64) models.SensorReading {
		return models.SensorReading{LightLevel: lux, LightStable: true, Position: models.PositionClosed}
	}

	// dawn: stable light crosses open_above, start before the window
	if got := p.Target(clock(5, 0, 0), reading(2)); got != models.TargetClosed {
		t.Fatalf("initial: %s", got)
	}
	var got models.TargetState
	for i := 0; i <= 20; i++ {
		got = p.Target(clock(5, 30, 5*i), reading(45))
	}
	if got != models.TargetOpen {
		t.Fatalf("expected Open after sustained light, got %s", got)
	}

	// flicker straddling the thresholds never flips it back and forth
	luxes := []float64{8, 45, 9, 50, 5, 41}
	for i, lux := range luxes {
		at := clock(5, 35, 5*i)
		if got := p.Target(at, reading(lux)); got != models.TargetOpen {
			t.Fatalf("tick %d lux %.0f: flipped to %s", i, lux, got)
		}
	}

	// sustained dusk closes once, and a later bright spell cannot reopen today
	for i := 0; i <= 20; i++ {
		got = p.Target(clock(19, 0, 5*i), reading(3))
	}
	if got != models.TargetClosed {
		t.Fatalf("expected Closed at dusk, got %s", got)
	}
	for i := 0; i <= 40; i++ {
		got = p.Target(clock(19, 10, 5*i), reading(60))
	}
	if got != models.TargetClosed {
		t.Fatalf("second opening in one day allowed: %s", got)
	}
}

func TestPlanner_UnstableLightFallsBackToWindow(t *testing.T) {
	light := NewLightPolicy(config.LightConfig{Enabled: true, OpenAbove: 40, CloseBelow: 10})
	p := fixedPlanner(t, 0, light)
	r := models.SensorReading{LightLevel: 2, LightStable: false}
	p.Target(clock(6, 0, 0), r)
	if got := p.Target(clock(8, 0, 0), r); got != models.TargetOpen {
		t.Fatalf("expected time-window Open with unstable light, got %s", got)
	}
}

func TestGovernor_StartAfterCloseConsumesCaps(t *testing.T) {
	g := NewGovernor(0, time.UTC)
	w := Window{OpenAt: clock(7, 0, 0), CloseAt: clock(20, 0, 0)}
	if got := g.Apply(clock(21, 0, 0), models.TargetClosed, w); got != models.TargetClosed {
		t.Fatalf("initial: %s", got)
	}
	if got := g.Apply(clock(21, 5, 0), models.TargetOpen, w); got != models.TargetClosed {
		t.Fatalf("opened after close on start day: %s", got)
	}
	next := Window{OpenAt: w.OpenAt.AddDate(0, 0, 1), CloseAt: w.CloseAt.AddDate(0, 0, 1)}
	if got := g.Apply(next.OpenAt, models.TargetOpen, next); got != models.TargetOpen {
		t.Fatalf("new day should open: %s", got)
	}
}

type failingSource struct {
	w   Window
	err error
}

func (f *failingSource) Window(day time.Time) (Window, error) {
	if f.err != nil {
		return Window{}, f.err
	}
	return f.w, nil
}

func TestPlanner_SourceErrorReusesLastWindow(t *testing.T) {
	src := &failingSource{w: Window{OpenAt: clock(7, 0, 0), CloseAt: clock(20, 0, 0)}}
	p := NewPlanner(src, nil, NewGovernor(0, time.UTC), time.UTC, nil)
	r := models.SensorReading{Stale: true}
	p.Target(clock(12, 0, 0), r)

	src.err = errors.New("ephemeris unavailable")
	tomorrow := clock(12, 0, 0).AddDate(0, 0, 1)
	if got := p.Target(tomorrow, r); got != models.TargetOpen {
		t.Fatalf("expected shifted window to keep Open, got %s", got)
	}
	w, ok := p.Window()
	if !ok || !w.OpenAt.Equal(clock(7, 0, 0).AddDate(0, 0, 1)) {
		t.Fatalf("window not shifted: %+v", w)
	}
}

func TestPlanner_NoWindowKeepsClosed(t *testing.T) {
	p := NewPlanner(&failingSource{err: errors.New("boom")}, nil, NewGovernor(0, time.UTC), time.UTC, nil)
	if got := p.Target(clock(12, 0, 0), models.SensorReading{}); got != models.TargetClosed {
		t.Fatalf("expected Closed without a window, got %s", got)
	}
}

func TestFromConfig_Modes(t *testing.T) {
	sc := config.ScheduleConfig{Mode: config.ScheduleFixed, OpenAt: "07:00", CloseAt: "20:00", Timezone: "UTC"}
	if _, err := FromConfig(sc, config.LightConfig{}, nil); err != nil {
		t.Fatalf("fixed: %v", err)
	}
	sc = config.ScheduleConfig{Mode: config.ScheduleSun, Latitude: 51.5, Longitude: -0.1, Timezone: "UTC"}
	if _, err := FromConfig(sc, config.LightConfig{Enabled: true, OpenAbove: 40, CloseBelow: 10}, nil); err != nil {
		t.Fatalf("sun: %v", err)
	}
	sc = config.ScheduleConfig{Mode: config.ScheduleTable, TableFile: filepath.Join(t.TempDir(), "missing.json"), Timezone: "UTC"}
	if _, err := FromConfig(sc, config.LightConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing table")
	}
	sc = config.ScheduleConfig{Mode: "lunar", Timezone: "UTC"}
	if _, err := FromConfig(sc, config.LightConfig{}, nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
