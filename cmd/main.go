package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coop_door/internal/actuator"
	"coop_door/internal/config"
	"coop_door/internal/controller"
	"coop_door/internal/handlers"
	"coop_door/internal/logger"
	"coop_door/internal/repository"
	"coop_door/internal/repository/db"
	"coop_door/internal/schedule"
	"coop_door/internal/sensor"
	"coop_door/internal/server"
	"coop_door/internal/service"
	"coop_door/internal/telemetry"

	"periph.io/x/host/v3"
)

const shutdownTimeout = 10 * time.Second

// closer releases a resource on shutdown.
type closer func() error

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level, logger.WithFileDir(cfg.Log.Dir))
	defer func() { _ = log.Sync() }()

	// open DB
	sqlDB, err := openDB(cfg.DB, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(sqlDB)

	driver, sampler, closeHW, err := openHardware(cfg.Hardware, log)
	if err != nil {
		log.Fatalw("failed to init hardware", "driver", cfg.Hardware.Driver, "err", err)
	}

	planner, err := schedule.FromConfig(cfg.Schedule, cfg.Light, log)
	if err != nil {
		log.Fatalw("failed to init schedule", "mode", cfg.Schedule.Mode, "err", err)
	}
	loc, _ := cfg.Schedule.Location() // checked by Validate

	observers, closers := openTelemetry(cfg, log)

	ctrl := controller.New(cfg.Controller, controller.Deps{
		Driver:    driver,
		Sampler:   sampler,
		Fusion:    sensor.NewFusion(cfg.Sensor),
		Planner:   planner,
		States:    repos.StateRepo,
		Events:    repos.EventRepo,
		Log:       log,
		Observers: observers,
		Location:  loc,
	})

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalw("failed to start controller", "err", err)
	}

	services := service.NewService(repos, ctrl, cfg.Auth)
	apiHandler := handlers.NewHandler(services, log)

	// start control loop
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		services.Loop.Run(ctx, cfg.Controller.TickInterval)
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
	<-loopDone
	for _, c := range append(closers, closeHW) {
		if c == nil {
			continue
		}
		if err := c(); err != nil {
			log.Warnw("shutdown_close_failed", "err", err)
		}
	}
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.DBConfig, log *logger.Logger) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "coop_door.db")
		path = "coop_door.db"
	}
	return db.InitDB(path)
}

// openHardware returns the guarded actuator and the raw sampler for the
// configured driver.
func openHardware(hw config.HardwareConfig, log *logger.Logger) (actuator.Driver, sensor.Sampler, closer, error) {
	if hw.Driver == config.DriverSim {
		door := actuator.NewSimDoor(hw.SimTravelTime, nil)
		log.Infow("using simulated door", "travel", hw.SimTravelTime)
		return actuator.NewGuard(door), door, nil, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, nil, err
	}
	drv, err := actuator.NewGPIODriver(hw, log)
	if err != nil {
		return nil, nil, nil, err
	}
	sampler, err := sensor.NewGPIOSampler(hw)
	if err != nil {
		_ = drv.Close()
		return nil, nil, nil, err
	}
	return actuator.NewGuard(drv), sampler, drv.Close, nil
}

// openTelemetry connects the optional status sinks. A sink that cannot
// connect is logged and skipped.
func openTelemetry(cfg config.Config, log *logger.Logger) ([]controller.Observer, []closer) {
	var (
		observers []controller.Observer
		closers   []closer
	)
	if cfg.MQTT.Enabled {
		pub, err := telemetry.NewMQTTPublisher(cfg.MQTT, log)
		if err != nil {
			log.Warnw("mqtt disabled", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			observers = append(observers, pub)
			closers = append(closers, pub.Close)
		}
	}
	if cfg.InfluxDB.Enabled {
		rec, err := telemetry.NewInfluxRecorder(cfg.InfluxDB, cfg.MQTT.DoorID, log)
		if err != nil {
			log.Warnw("influxdb disabled", "url", cfg.InfluxDB.URL, "err", err)
		} else {
			observers = append(observers, rec)
			closers = append(closers, rec.Close)
		}
	}
	return observers, closers
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop the control loop; it stops the motor on exit
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
