package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/CorrectorMux/internal/config"
	"github.com/KevinKickass/CorrectorMux/internal/modbus"
	"github.com/KevinKickass/CorrectorMux/internal/mqtt"
	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"github.com/KevinKickass/CorrectorMux/internal/storage"
	"github.com/KevinKickass/CorrectorMux/internal/supply"
	"github.com/KevinKickass/CorrectorMux/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the service configuration")
	flag.Parse()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger initialisieren
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", *configPath))
	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret not set or too short, using development secret",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}

	ctx := context.Background()

	// PostgreSQL optional
	var db *storage.PostgresClient
	if cfg.Database.Enabled {
		db, err = storage.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare database schema", zap.Error(err))
		}
		logger.Info("Database connected successfully")
	}

	entries, err := loadChannels(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to load channel table", zap.Error(err))
	}
	settings, err := supply.Settings(entries)
	if err != nil {
		logger.Fatal("Invalid channel table", zap.Error(err))
	}

	// Gateway
	link, err := modbus.Open(cfg.Modbus.Backend, cfg.Modbus.Endpoint, cfg.Modbus.UnitID, cfg.Modbus.Timeout)
	if err != nil {
		logger.Fatal("Failed to create modbus transport", zap.Error(err))
	}
	defer link.Close()
	if err := link.Connect(); err != nil {
		// der Poller verbindet beim nächsten Zyklus neu
		logger.Warn("Gateway not reachable yet",
			zap.String("endpoint", cfg.Modbus.Endpoint),
			zap.Error(err))
	}

	driver, err := mux.NewDriver(link, settings, mux.Options{
		Timing: mux.Timing{
			SettleDelay:    cfg.Driver.SettleDelay,
			SelectDelay:    cfg.Driver.SelectDelay,
			SelectTimeout:  cfg.Driver.SelectTimeout,
			SelectInterval: cfg.Driver.SelectInterval,
			VerifyInterval: cfg.Driver.VerifyInterval,
			VerifyTimeout:  cfg.Driver.VerifyTimeout,
		},
		VerifyWrites: cfg.Driver.VerifyWrites,
		Logger:       logger.Named("mux"),
	})
	if err != nil {
		logger.Fatal("Failed to create driver", zap.Error(err))
	}

	var audit supply.AuditLog
	if db != nil {
		audit = db
	}
	manager := supply.NewManager(driver, audit, logger)
	poller := supply.NewPoller(manager, cfg.Driver.PollInterval, cfg.Driver.RetryDelay, logger)

	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		publisher = pub
		logger.Info("MQTT connected", zap.String("broker", cfg.MQTT.Broker), zap.String("topic", cfg.MQTT.Topic))
	}

	// Lifecycle Manager
	lifecycle := system.NewLifecycleManager(cfg, manager, poller, db, publisher, logger)

	// System starten
	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("CorrectorMux started successfully")

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("CorrectorMux stopped successfully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// loadChannels reads the channel table from the configured source. An empty
// database table is seeded from the file.
func loadChannels(ctx context.Context, cfg *config.Config, db *storage.PostgresClient, logger *zap.Logger) ([]supply.ChannelEntry, error) {
	validator, err := supply.NewValidator()
	if err != nil {
		return nil, err
	}

	if cfg.Channels.Source == config.ChannelSourceDatabase {
		entries, err := db.LoadChannelEntries(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			if err := validator.ValidateEntries(entries); err != nil {
				return nil, err
			}
			logger.Info("Channel table loaded from database", zap.Int("channels", len(entries)))
			return entries, nil
		}
		logger.Warn("Channel table in database is empty, seeding from file", zap.String("file", cfg.Channels.File))
	}

	entries, err := supply.LoadChannelFile(cfg.Channels.File, validator)
	if err != nil {
		return nil, err
	}
	logger.Info("Channel table loaded from file",
		zap.String("file", cfg.Channels.File),
		zap.Int("channels", len(entries)))

	if cfg.Channels.Source == config.ChannelSourceDatabase {
		if err := db.SaveChannelEntries(ctx, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
