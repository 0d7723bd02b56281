// Sparkedge - Sparkplug B edge telemetry client
//
// Sparkedge samples local tags, publishes them as Sparkplug B metrics over
// MQTT, and buffers everything to SQLite while the broker is unreachable.
// A local admin API exposes health, metrics, and maintenance operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/oakmoor/sparkedge/migrations"

	"github.com/oakmoor/sparkedge/internal/api"
	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/connection"
	"github.com/oakmoor/sparkedge/internal/history"
	"github.com/oakmoor/sparkedge/internal/infrastructure/config"
	"github.com/oakmoor/sparkedge/internal/infrastructure/database"
	"github.com/oakmoor/sparkedge/internal/infrastructure/logging"
	"github.com/oakmoor/sparkedge/internal/publisher"
	"github.com/oakmoor/sparkedge/internal/sysinfo"
	"github.com/oakmoor/sparkedge/internal/tag"
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

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Sparkedge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the buffer database and bring the schema up to date
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

	// Tag registry: configured tags plus the built-in system tags
	registry, err := tag.NewRegistry(withSystemTags(cfg.Tags), buildSamplers(), log)
	if err != nil {
		return fmt.Errorf("loading tag registry: %w", err)
	}
	log.Info("tag registry initialised", "tags", registry.Count())

	filter := tag.NewFilter()

	// Store-and-forward buffer
	store, err := buffer.NewStore(db, cfg.Buffer.CeilingBytes)
	if err != nil {
		return fmt.Errorf("creating buffer store: %w", err)
	}
	store.SetLogger(log)
	log.Info("buffer store initialised", "ceiling_bytes", store.Ceiling())

	// Optional InfluxDB mirror
	var historyClient *history.Client
	if cfg.History.Enabled {
		historyClient, err = history.Connect(cfg.History)
		if err != nil {
			return fmt.Errorf("connecting to history server: %w", err)
		}
		defer func() {
			log.Info("closing history connection")
			if closeErr := historyClient.Close(); closeErr != nil {
				log.Error("error closing history connection", "error", closeErr)
			}
		}()
		historyClient.SetOnError(func(err error) {
			log.Error("history write error", "error", err)
		})
		log.Info("history mirror connected",
			"url", cfg.History.URL,
			"org", cfg.History.Org,
			"bucket", cfg.History.Bucket,
		)
	} else {
		log.Info("history mirror disabled")
	}

	// Connection manager owns the MQTT session and Sparkplug lifecycle
	manager := connection.NewManager(connection.Options{
		ConfigPath: configPath,
		Registry:   registry,
		Filter:     filter,
		Buffer:     store,
		Rebooter:   systemRebooter{log: log},
		Watchdog:   cfg.Watchdog,
		Version:    version,
		Logger:     log,
	})

	// Initial connect is best-effort: the watchdog keeps retrying and the
	// scheduler buffers samples until a session is up.
	if connectErr := manager.Connect(ctx); connectErr != nil {
		log.Warn("initial broker connect failed, buffering until watchdog recovers",
			"error", connectErr)
	} else {
		if historyClient != nil {
			historyClient.WriteNodeEvent("connect", "initial session established")
		}
	}
	defer func() {
		log.Info("disconnecting from broker")
		manager.Disconnect()
	}()

	go manager.RunWatchdog(ctx)

	// Publish scheduler
	schedOpts := publisher.Options{
		Connection: manager,
		Registry:   registry,
		Filter:     filter,
		Buffer:     store,
		Interval:   time.Duration(cfg.Scheduler.Interval) * time.Second,
		Logger:     log,
	}
	if historyClient != nil {
		schedOpts.History = historyClient
	}
	scheduler := publisher.NewScheduler(schedOpts)
	go scheduler.Run(ctx)

	// Admin API server
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log,
			Connection: manager,
			Buffer:     store,
			Registry:   registry,
			Filter:     filter,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating admin server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting admin server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing admin server", "error", closeErr)
			}
		}()
	} else {
		log.Info("admin server disabled")
	}

	if err := healthCheck(ctx, db, historyClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if historyClient != nil {
		historyClient.WriteNodeEvent("shutdown", "signal received")
		historyClient.Flush()
	}

	// Deferred Close() calls run in reverse order:
	// 1. Admin server
	// 2. MQTT disconnect (publishes NDEATH)
	// 3. History (if enabled)
	// 4. Database

	log.Info("Sparkedge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SPARKEDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SPARKEDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// withSystemTags appends the built-in system tag definitions to the
// configured tags, skipping any name the operator has already defined.
func withSystemTags(configured []config.TagConfig) []config.TagConfig {
	builtin := []config.TagConfig{
		{Name: sysinfo.TagCPULoad, Type: "double", Unit: "%", Desc: "CPU utilisation"},
		{Name: sysinfo.TagMemoryUsed, Type: "double", Unit: "%", Desc: "Memory utilisation"},
		{Name: sysinfo.TagDiskUsed, Type: "double", Unit: "%", Desc: "Disk utilisation"},
		{Name: sysinfo.TagUptime, Type: "long", Unit: "s", Desc: "Seconds since boot"},
		{Name: sysinfo.TagIPAddress, Type: "string", Desc: "Primary IP address"},
	}

	taken := make(map[string]bool, len(configured))
	for _, t := range configured {
		taken[t.Name] = true
	}

	out := make([]config.TagConfig, 0, len(configured)+len(builtin))
	out = append(out, configured...)
	for _, t := range builtin {
		if !taken[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// buildSamplers returns the sampler table for the built-in system tags.
func buildSamplers() map[string]tag.Sampler {
	samplers := make(map[string]tag.Sampler)
	for name, fn := range sysinfo.Samplers("/") {
		samplers[name] = fn
	}
	return samplers
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, historyClient *history.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if historyClient != nil {
		if err := historyClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	return nil
}

// systemRebooter reboots the host in response to a Node Control/Reboot
// command. It tries systemctl first and falls back to the bare reboot
// binary for hosts without systemd.
type systemRebooter struct {
	log *logging.Logger
}

func (r systemRebooter) Reboot() error {
	r.log.Warn("reboot requested by command")

	if err := exec.Command("systemctl", "reboot").Run(); err == nil {
		return nil
	}
	if err := exec.Command("reboot").Run(); err != nil {
		return fmt.Errorf("rebooting host: %w", err)
	}
	return nil
}
