package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "github.com/nerrad567/encoderd/migrations"

	"github.com/nerrad567/encoderd/internal/anglestore"
	"github.com/nerrad567/encoderd/internal/encoder"
	"github.com/nerrad567/encoderd/internal/history"
	"github.com/nerrad567/encoderd/internal/infrastructure/config"
	"github.com/nerrad567/encoderd/internal/infrastructure/database"
	"github.com/nerrad567/encoderd/internal/infrastructure/influxdb"
	"github.com/nerrad567/encoderd/internal/infrastructure/logging"
	"github.com/nerrad567/encoderd/internal/infrastructure/mqtt"
	"github.com/nerrad567/encoderd/internal/pidfile"
	"github.com/nerrad567/encoderd/internal/quadrature"
	"github.com/nerrad567/encoderd/internal/telemetry"
)

const (
	// dirPermissions is the mode of a newly created working directory.
	dirPermissions = 0750

	// pruneInterval is how often old history rows are deleted.
	pruneInterval = 24 * time.Hour
)

// daemon owns one start of the control loop and everything it needs.
type daemon struct {
	cfg *config.Config

	// onSimulator, if set, receives each simulated pin backend as it opens.
	onSimulator func(name string, sim *quadrature.Simulator)

	// ready, if set, is closed once the loop is about to run.
	ready chan struct{}
}

func newDaemon(cfg *config.Config) *daemon {
	return &daemon{cfg: cfg}
}

// run starts the daemon and blocks until ctx is cancelled.
func (d *daemon) run(ctx context.Context) error {
	cfg := d.cfg

	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}

	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer log.Close() //nolint:errcheck // Nothing left to report to

	log.Info("starting encoderd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"dir", cfg.Dir,
	)

	pid, err := pidfile.Acquire(cfg.PIDFile, os.Getpid())
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := pid.Release(); releaseErr != nil {
			log.Error("error removing pid file", "error", releaseErr)
		}
	}()
	log.Info("pid file written", "path", pid.Path(), "pid", pid.PID())

	sinks, closeSinks := openSinks(ctx, cfg, log)
	defer closeSinks()

	publisher := telemetry.NewPublisher(telemetry.DefaultQueueSize, sinks...)
	publisher.SetLogger(log)
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	var pubWG sync.WaitGroup
	pubWG.Add(1)
	go func() {
		defer pubWG.Done()
		publisher.Run(pubCtx) //nolint:errcheck // Always nil
	}()
	defer func() {
		stopPublisher()
		pubWG.Wait()
	}()

	registry := encoder.NewRegistry(anglestore.NewFileStore(cfg.Dir), d.openDevice)
	registry.SetLogger(log)
	registry.AddObserver(publisher)
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing encoder devices", "error", closeErr)
		}
	}()

	if err := registry.Setup(ctx, encoderConfigs(cfg)); err != nil {
		return fmt.Errorf("setting up encoders: %w", err)
	}
	if registry.ActiveCount() == 0 {
		log.Warn("no encoder device could be activated, angles will not change")
	}

	loop := encoder.NewLoop(registry, encoder.LoopConfig{
		Interval:    cfg.TickInterval(),
		PollTimeout: cfg.PollTimeout,
	})
	loop.SetLogger(log)

	if d.ready != nil {
		close(d.ready)
	}
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("running control loop: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	// Deferred Close() calls run in reverse order: devices, publisher
	// drain, telemetry connections, pid file, log.
	return nil
}

// openDevice starts a quadrature decoder for one encoder.
func (d *daemon) openDevice(ec encoder.EncoderConfig) (encoder.Device, error) {
	var pins quadrature.Pins
	switch d.cfg.Hardware.Driver {
	case config.DriverSimulated:
		sim := quadrature.NewSimulator()
		if d.onSimulator != nil {
			d.onSimulator(ec.Name, sim)
		}
		pins = sim
	default:
		p, err := quadrature.OpenRPIO(ec.PinA, ec.PinB)
		if err != nil {
			return nil, err
		}
		pins = p
	}

	w := quadrature.NewWorker(pins, d.cfg.Hardware.SampleInterval)
	w.Start()
	return w, nil
}

// encoderConfigs converts the configured encoders for the registry.
func encoderConfigs(cfg *config.Config) []encoder.EncoderConfig {
	out := make([]encoder.EncoderConfig, len(cfg.Encoders))
	for i, e := range cfg.Encoders {
		out[i] = encoder.EncoderConfig{
			Name:        e.Name,
			PinA:        e.PinA,
			PinB:        e.PinB,
			Calibration: e.Calibration,
			Slot:        e.Slot,
		}
	}
	return out
}

// openSinks connects every enabled telemetry backend. A backend that
// cannot be reached is logged and skipped; angle files do not depend on it.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]telemetry.Sink, func()) {
	var sinks []telemetry.Sink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		db, err := openHistory(ctx, cfg, log)
		if err != nil {
			log.Warn("angle history unavailable", "path", cfg.Database.Path, "error", err)
		} else {
			repo := history.NewSQLiteRepository(db.DB)
			sinks = append(sinks, telemetry.NewHistorySink(repo))

			pruneCtx, stopPrune := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				pruneHistory(pruneCtx, repo, cfg.Database.RetentionDays, log)
			}()
			closers = append(closers, func() {
				stopPrune()
				<-done
				log.Info("closing database")
				if closeErr := db.Close(); closeErr != nil {
					log.Error("error closing database", "error", closeErr)
				}
			})
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err == nil {
			if err = client.HealthCheck(ctx); err != nil {
				client.Close() //nolint:errcheck // Already failing
			}
		}
		if err != nil {
			log.Warn("MQTT unavailable, angle telemetry disabled", "error", err)
		} else {
			client.SetLogger(log)
			client.SetOnConnect(func() {
				log.Info("MQTT reconnected")
			})
			client.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
			sinks = append(sinks, telemetry.NewMQTTSink(client))
			closers = append(closers, func() {
				log.Info("disconnecting from MQTT")
				if closeErr := client.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			})
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, angle metrics disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
			sinks = append(sinks, telemetry.NewInfluxSink(client))
			closers = append(closers, func() {
				log.Info("closing InfluxDB connection")
				if closeErr := client.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			})
		}
	}

	return sinks, closeAll
}

// openHistory opens and migrates the angle history database.
func openHistory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}
	log.Info("database connected", "path", db.Path())
	return db, nil
}

// pruneHistory deletes history older than the retention window now and
// then once per pruneInterval until ctx ends.
func pruneHistory(ctx context.Context, repo *history.SQLiteRepository, days int, log *logging.Logger) {
	if days <= 0 {
		return
	}
	retention := time.Duration(days) * 24 * time.Hour

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning angle history failed", "error", err)
		case n > 0:
			log.Info("pruned angle history", "rows", n, "retention_days", days)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// stopDaemon terminates the daemon named by the PID file.
func stopDaemon(ctx context.Context, cfg *config.Config, timeout time.Duration, out io.Writer) error {
	pid, err := pidfile.Running(cfg.PIDFile)
	if errors.Is(err, pidfile.ErrNotRunning) {
		fmt.Fprintln(out, "encoderd is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading pid file: %w", err)
	}
	if pid == os.Getpid() {
		return fmt.Errorf("pid file %s names this process", cfg.PIDFile)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pidfile.Terminate(ctx, pid); err != nil {
		return err
	}
	fmt.Fprintf(out, "encoderd stopped (pid %d)\n", pid)
	return nil
}

// zeroAngles sets every configured encoder to 0.0 without touching hardware.
func zeroAngles(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if pid, err := pidfile.Running(cfg.PIDFile); err == nil {
		return fmt.Errorf("%w (pid %d): stop it before zeroing", pidfile.ErrRunning, pid)
	}

	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}
	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer log.Close() //nolint:errcheck // Nothing left to report to

	// Hold the PID file so a start cannot race the zeroing.
	pid, err := pidfile.Acquire(cfg.PIDFile, os.Getpid())
	if err != nil {
		return err
	}
	defer pid.Release() //nolint:errcheck // Best effort

	sinks, closeSinks := openSinks(ctx, cfg, log)
	defer closeSinks()
	publisher := telemetry.NewPublisher(telemetry.DefaultQueueSize, sinks...)
	publisher.SetLogger(log)

	registry := encoder.NewRegistry(anglestore.NewFileStore(cfg.Dir), nil)
	registry.SetLogger(log)
	registry.AddObserver(publisher)

	if err := registry.Setup(ctx, encoderConfigs(cfg)); err != nil {
		return fmt.Errorf("setting up encoders: %w", err)
	}
	zeroErr := registry.Zero(ctx)

	// Deliver what was queued, then stop.
	drained, cancel := context.WithCancel(context.Background())
	cancel()
	publisher.Run(drained) //nolint:errcheck // Always nil

	if zeroErr != nil {
		return fmt.Errorf("zeroing angles: %w", zeroErr)
	}
	for _, r := range registry.Readings() {
		fmt.Fprintf(out, "%s: %s\n", r.Name, anglestore.Format(r.Angle))
	}
	return nil
}

// printStatus writes the daemon state and each encoder's persisted angle.
func printStatus(ctx context.Context, cfg *config.Config, out io.Writer) error {
	pid, err := pidfile.Running(cfg.PIDFile)
	switch {
	case err == nil:
		fmt.Fprintf(out, "encoderd is running (pid %d)\n", pid)
	case errors.Is(err, pidfile.ErrNotRunning) && pid > 0:
		fmt.Fprintf(out, "encoderd is not running (stale pid file, pid %d)\n", pid)
	case errors.Is(err, pidfile.ErrNotRunning):
		fmt.Fprintln(out, "encoderd is not running")
	default:
		fmt.Fprintf(out, "encoderd state unknown: %v\n", err)
	}

	var repo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			BusyTimeout: cfg.Database.BusyTimeout,
			ReadOnly:    true,
		})
		if dbErr == nil {
			defer db.Close() //nolint:errcheck // Read only
			repo = history.NewSQLiteRepository(db.DB)
		}
	}

	store := anglestore.NewFileStore(cfg.Dir)
	for _, e := range cfg.Encoders {
		line := fmt.Sprintf("%s: ", e.Name)
		angle, loadErr := store.Load(e.Slot)
		switch {
		case loadErr == nil:
			line += anglestore.Format(angle)
		case errors.Is(loadErr, anglestore.ErrNotFound):
			line += "no saved angle"
		case errors.Is(loadErr, anglestore.ErrCorrupt):
			line += "unreadable angle file"
		default:
			line += "error: " + loadErr.Error()
		}

		if repo != nil {
			if recent, recErr := repo.Recent(ctx, e.Name, 1); recErr == nil && len(recent) == 1 {
				line += fmt.Sprintf(" (last %s %s)", recent[0].Source, recent[0].CreatedAt.Local().Format(time.DateTime))
			}
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
