package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/nerrad567/gray-logic-node/migrations"

	"github.com/nerrad567/gray-logic-node/internal/api"
	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/display"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/input"
	"github.com/nerrad567/gray-logic-node/internal/kvstore"
	"github.com/nerrad567/gray-logic-node/internal/mode"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/status"
	"github.com/nerrad567/gray-logic-node/internal/system"
)

// options are the command-line settings for the node daemon.
type options struct {
	configPath string
	panelDir   string
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Command-line settings
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	store := kvstore.NewSQLite(db)

	// Operating mode. A failed first-boot seed is fatal; later persistence
	// failures degrade to in-memory operation inside the machine.
	modes, err := mode.New(ctx, store, log.Component("mode"))
	if err != nil {
		return fmt.Errorf("initialising mode: %w", err)
	}
	log.Info("mode restored", "mode", modes.Get().String(), "degraded", modes.Degraded())

	pins, err := openPins(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := pins.Close(); closeErr != nil {
			log.Error("error releasing gpio lines", "error", closeErr)
		}
	}()

	devices := device.NewController(ctx, store, pins.outputs, device.IntervalBounds{
		Default: cfg.Sampling.Interval,
		Min:     cfg.Sampling.MinInterval,
		Max:     cfg.Sampling.MaxInterval,
	}, log.Component("device"))
	log.Info("device controller ready", "interval_s", devices.IntervalSeconds())

	rebooter := system.NewRebooter(cfg.System.RebootCommand, config.Seconds(cfg.System.RebootDelay), nil)
	rebooter.SetLogger(log.Component("system"))

	// Sensors and optional history
	sensors := sensor.NewStore(config.Millis(cfg.Sampling.LockTimeout))
	clock := sensor.NewSystemClock()
	sampler := sensor.NewSampler(sensors, buildSensors(cfg.Sampling.Sensors, clock), devices.Interval)
	sampler.SetGate(modes)
	sampler.SetLogger(log.Component("sensor"))

	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sampler.SetRecorder(influxClient)
		devices.OnChange(func(st device.State) {
			influxClient.RecordState(st, modes.IsOn())
		})
		modes.OnChange(func(_, cur mode.Mode) {
			influxClient.RecordState(devices.State(), cur == mode.On)
		})
	}

	// Connectivity
	network := connectivity.New(
		connectivity.NewNMLink(cfg.Network.Interface, nil),
		connectivity.NewDaemonAccessPoint(connectivity.APConfig{
			HostapdBinary: cfg.Network.AccessPoint.HostapdBinary,
			HostapdConfig: cfg.Network.AccessPoint.HostapdConfig,
			DHCPBinary:    cfg.Network.AccessPoint.DHCPBinary,
			DHCPArgs:      cfg.Network.AccessPoint.DHCPArgs,
		}, log.Component("access_point")),
		store,
		rebooter,
		connectivity.Policy{
			MaxRetry:       cfg.Network.MaxRetry,
			RetryDelay:     config.Seconds(cfg.Network.RetryDelay),
			ConnectTimeout: config.Seconds(cfg.Network.ConnectTimeout),
			RSSIInterval:   config.Seconds(cfg.Network.RSSIInterval),
			RSSIThreshold:  cfg.Network.RSSIThreshold,
		},
	)
	network.SetLogger(log.Component("connectivity"))

	// Button pipeline. The worker also runs deferred remote commands.
	queue := input.NewQueue(cfg.Input.QueueDepth)
	queue.SetLogger(log.Component("input"))
	worker := input.NewWorker(queue, buttonBindings(modes, devices, network))
	worker.SetLogger(log.Component("input"))
	debouncer := input.NewDebouncer(queue, config.Millis(cfg.Input.PollInterval), cfg.Input.StableReads)
	debouncer.SetLogger(log.Component("input"))
	for button, pin := range pins.buttons {
		debouncer.Add(button, pin)
	}

	// Broker session
	sess := session.New(session.Config{
		Topics:      mqtt.Topics{Base: cfg.MQTT.BaseTopic, DeviceID: cfg.Device.ID},
		Firmware:    cfg.Device.Firmware,
		StateBackup: config.Seconds(cfg.Sampling.StateBackup),
		DialRetry:   config.Seconds(cfg.MQTT.Reconnect.InitialDelay),
	}, mqttDialer(cfg, log), session.Deps{
		Sensors:  sensors,
		Mode:     modes,
		Device:   devices,
		Clock:    clock,
		Network:  network,
		Tasks:    worker,
		Rebooter: rebooter,
		FactoryReset: func(ctx context.Context) error {
			return system.FactoryReset(ctx, store, rebooter)
		},
	})
	sess.SetLogger(log.Component("session"))
	defer sess.Stop()

	// Background components share one context and are waited for before
	// the session, history sink, GPIO lines and database are released.
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()
	spawn := func(fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(runCtx)
		}()
	}

	// Status indicators
	var flags status.Flags
	flags.SetModeOn(modes.IsOn())
	aggregator := status.NewAggregator(&flags, pins.indicators, config.Millis(cfg.Indicators.PollInterval))
	aggregator.SetLogger(log.Component("status"))

	modes.OnChange(func(_, cur mode.Mode) {
		flags.SetModeOn(cur == mode.On)
		sess.NotifyStateChanged()
	})
	devices.OnChange(func(device.State) {
		sess.NotifyStateChanged()
	})
	sess.OnStateChange(func(_, cur session.State) {
		flags.SetSessionUp(cur == session.Connected)
	})

	// Local HTTP surface and display
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	spawn(hub.Run)

	disp := display.New(display.Sources{
		Sensors: sensors,
		Mode:    modes,
		Outputs: devices,
		Network: network,
		Session: sess,
	}, display.DefaultInterval,
		display.NewLogRenderer(log.Component("display")),
		display.NewBroadcastRenderer(hub),
	)
	disp.SetLogger(log.Component("display"))

	// The session follows the station link. Listeners run on the
	// connectivity goroutine, so start/stop is handed to a follower.
	link := newLinkFollower(sess)
	network.OnStateChange(func(_, cur connectivity.State) {
		up := cur == connectivity.Connected
		flags.SetLinkUp(up)
		link.set(up)
		hub.Broadcast(api.EventNetworkState, network.Status())
	})

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Network:  network,
		Display:  disp,
		Session:  sess,
		Hub:      hub,
		PanelDir: opts.panelDir,
		DeviceID: cfg.Device.ID,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	// A clean broker disconnect before the host goes down.
	rebooter.BeforeReboot(sess.Stop)

	spawn(worker.Run)
	spawn(debouncer.Run)
	spawn(sampler.Run)
	spawn(aggregator.Run)
	spawn(disp.Run)
	spawn(link.run)
	spawn(func(ctx context.Context) {
		if runErr := network.Run(ctx); runErr != nil {
			log.Error("connectivity stopped", "error", runErr)
		}
	})

	if err := healthCheck(ctx, db, influxClient, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case rebootErr := <-rebooter.Done():
		if rebootErr != nil {
			return fmt.Errorf("reboot failed: %w", rebootErr)
		}
		log.Info("reboot command issued, exiting")
	}

	// Deferred calls run in reverse order: API server, background
	// components, session, InfluxDB (if enabled), GPIO lines, database.
	log.Info("Gray Logic Node stopped")
	return nil
}

// openDatabase opens the settings database and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// connectInfluxDB connects the optional history sink. It returns nil when
// history is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// mqttDialer returns the session's broker dialer. Each call makes a fresh
// client; the session owns and closes it.
func mqttDialer(cfg *config.Config, log *logging.Logger) session.Dialer {
	topics := mqtt.Topics{Base: cfg.MQTT.BaseTopic, DeviceID: cfg.Device.ID}
	return func(ctx context.Context) (session.Client, error) {
		client, err := mqtt.Connect(ctx, cfg.MQTT, topics)
		if err != nil {
			return nil, err
		}
		client.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", client.Broker(),
			"client_id", mqtt.ClientID(cfg.MQTT, cfg.Device.ID),
		)
		return client, nil
	}
}

// buildSensors maps configured sysfs sources to drivers. Unconfigured
// sensors stay nil and are skipped by the sampler.
func buildSensors(cfg config.SensorsConfig, clock sensor.Clock) sensor.Sensors {
	s := sensor.Sensors{Clock: clock}
	if cfg.Temperature.Path != "" {
		s.Temperature = sensor.NewIIOSensor(cfg.Temperature.Path, cfg.Temperature.Scale)
	}
	if cfg.Humidity.Path != "" {
		s.Humidity = sensor.NewIIOSensor(cfg.Humidity.Path, cfg.Humidity.Scale)
	}
	if cfg.Light.Path != "" {
		s.Light = sensor.NewIIOSensor(cfg.Light.Path, cfg.Light.Scale)
	}
	return s
}

// buttonBindings maps each physical button to its action.
func buttonBindings(modes *mode.Machine, devices *device.Controller, network *connectivity.Machine) map[input.Button]input.Action {
	toggle := func(o device.Output) input.Action {
		return func(context.Context) error {
			_, err := devices.ToggleOutput(o)
			return err
		}
	}
	return map[input.Button]input.Action{
		input.Mode: func(ctx context.Context) error {
			modes.Toggle(ctx)
			return nil
		},
		input.LinkReset: network.ForgetNetwork,
		input.OutputA:   toggle(device.Fan),
		input.OutputB:   toggle(device.Light),
		input.OutputC:   toggle(device.AC),
	}
}

// healthCheck verifies the local infrastructure is usable.
//
// The broker is not checked: the session connects and reconnects on its
// own once the station link is up.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - log: Logger for non-fatal failures
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, log *logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// History is best effort; an unreachable InfluxDB does not stop the node.
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("InfluxDB health check failed", "error", err)
		}
	}
	return nil
}
