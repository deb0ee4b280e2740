// macropilot - hierarchical macro autopilot
//
// This is the main entry point for the macropilot service. It keeps a
// library of named macros (trees of vessel actions), runs one macro at a
// time against a vessel at a fixed tick rate, and exposes the library and
// engine over a REST/WebSocket API.
//
// The vessel is either a built-in simulation or a real vehicle bridged
// over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/macro-autopilot/migrations"

	"github.com/nerrad567/macro-autopilot/internal/api"
	"github.com/nerrad567/macro-autopilot/internal/control"
	"github.com/nerrad567/macro-autopilot/internal/geo"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/config"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/database"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/influxdb"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/logging"
	"github.com/nerrad567/macro-autopilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/macro-autopilot/internal/macro"
	"github.com/nerrad567/macro-autopilot/internal/vessel"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: each step is linear
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting macropilot",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, explicit := getConfigPath()
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Macro library
	repo := macro.NewSQLiteRepository(db.DB)
	library := macro.NewLibrary(repo)
	library.SetLogger(log.Component("library"))
	if refreshErr := library.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading macro library: %w", refreshErr)
	}
	if cfg.Engine.ImportFile != "" {
		if importErr := importLibrary(ctx, library, cfg.Engine.ImportFile, log); importErr != nil {
			return importErr
		}
	}
	log.Info("macro library initialised", "macros", library.Count())

	// MQTT (optional unless the vessel is remote)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	v, err := buildVessel(cfg, mqttClient, log)
	if err != nil {
		return err
	}
	vessels := vessel.NewRegistry()
	vessels.Add(v)
	log.Info("vessel ready", "vessel_id", v.ID(), "source", cfg.Vessel.Source)

	// Hub is shared by the engine (broadcaster) and the API (connections).
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	engine := macro.NewEngine(engineConfig(cfg), buildEngineDeps(engineParts{
		vessel:   v,
		resolver: vessels,
		library:  library,
		repo:     repo,
		mqtt:     mqttClient,
		hub:      hub,
		influx:   influxClient,
		logger:   log.Component("engine"),
	}))
	if cfg.Engine.AutoLoad != "" {
		if loadErr := engine.Load(ctx, cfg.Engine.AutoLoad); loadErr != nil {
			return fmt.Errorf("auto-loading macro %q: %w", cfg.Engine.AutoLoad, loadErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Library:     library,
		Engine:      engine,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, engine running",
		"tick_interval", cfg.GetTickInterval(),
		"max_ticks", cfg.Engine.MaxTicks,
	)

	// Blocks until the shutdown signal.
	if runErr := engine.Run(ctx); runErr != nil {
		return fmt.Errorf("engine: %w", runErr)
	}

	log.Info("shutdown signal received, cleaning up")
	engine.Unload(context.Background())

	log.Info("macropilot stopped")
	return nil
}

// getConfigPath returns the configuration file path and whether it was set
// explicitly through MACROPILOT_CONFIG.
func getConfigPath() (string, bool) {
	if path := os.Getenv("MACROPILOT_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig reads the config file. A missing default file falls back to
// built-in defaults; a missing explicit file is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating default config: %w", err)
	}
	return cfg, nil
}

func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// buildVessel creates the vessel named by the config.
func buildVessel(cfg *config.Config, client *mqtt.Client, log *logging.Logger) (vessel.Vessel, error) {
	switch cfg.Vessel.Source {
	case config.SourceMQTT:
		if client == nil {
			return nil, fmt.Errorf("vessel source %q requires MQTT", config.SourceMQTT)
		}
		remote := vessel.NewRemote(cfg.Vessel.ID, client, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0-2
		remote.SetLogger(log.Component("vessel"))
		if err := remote.Start(); err != nil {
			return nil, fmt.Errorf("starting remote vessel: %w", err)
		}
		return remote, nil
	default:
		return vessel.NewSim(simConfig(cfg)), nil
	}
}

func simConfig(cfg *config.Config) vessel.SimConfig {
	s := cfg.Vessel.Sim
	return vessel.SimConfig{
		ID:           cfg.Vessel.ID,
		Name:         cfg.Vessel.Name,
		Start:        geo.Coordinates{Lat: s.Latitude, Lon: s.Longitude},
		Altitude:     s.Altitude,
		Heading:      s.Heading,
		MaxSpeed:     s.MaxSpeed,
		TurnRate:     s.TurnRate,
		BodyRadius:   cfg.Vessel.BodyRadius,
		Charge:       s.Charge,
		ChargeDrain:  s.ChargeDrain,
		ActionGroups: s.ActionGroups,
		Parts:        s.Parts,
	}
}

func engineConfig(cfg *config.Config) macro.EngineConfig {
	return macro.EngineConfig{
		VesselID:     cfg.Vessel.ID,
		TickInterval: cfg.GetTickInterval(),
		MaxTicks:     cfg.Engine.MaxTicks,
		Intervention: cfg.Engine.Intervention,
		Env: macro.Env{
			Gains:      control.Gains{P: cfg.Engine.Smoothing.P, I: cfg.Engine.Smoothing.I},
			BodyRadius: cfg.Vessel.BodyRadius,
		},
	}
}

// engineParts collects the engine's collaborators before nil clients are
// dropped from the interface fields.
type engineParts struct {
	vessel   vessel.Vessel
	resolver geo.EntityResolver
	library  *macro.Library
	repo     macro.Repository
	mqtt     *mqtt.Client
	hub      *api.Hub
	influx   *influxdb.Client
	logger   *logging.Logger
}

// buildEngineDeps converts optional clients into engine dependencies. A nil
// *Client stored in an interface is not a nil interface, so disabled clients
// are left unset instead.
func buildEngineDeps(p engineParts) macro.Deps {
	deps := macro.Deps{
		Vessel:   p.vessel,
		Resolver: p.resolver,
		Library:  p.library,
		Repo:     p.repo,
		Logger:   p.logger,
	}
	if p.mqtt != nil {
		deps.MQTT = p.mqtt
	}
	if p.hub != nil {
		deps.Hub = p.hub
	}
	if p.influx != nil {
		deps.Metrics = p.influx
	}
	return deps
}

// importLibrary imports a YAML library file without overwriting existing
// macros.
func importLibrary(ctx context.Context, library *macro.Library, path string, log *logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading library file: %w", err)
	}
	res, err := library.Import(ctx, data, false)
	if err != nil {
		return fmt.Errorf("importing library file %q: %w", path, err)
	}
	for _, msg := range res.Errors {
		log.Warn("library import problem", "path", path, "error", msg)
	}
	log.Info("library file imported",
		"path", path,
		"saved", len(res.Saved),
		"skipped", len(res.Skipped),
	)
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
