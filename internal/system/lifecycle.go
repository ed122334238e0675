package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/api/rest"
	"github.com/KevinKickass/CorrectorMux/internal/api/websocket"
	"github.com/KevinKickass/CorrectorMux/internal/auth"
	"github.com/KevinKickass/CorrectorMux/internal/config"
	"github.com/KevinKickass/CorrectorMux/internal/interfaces"
	"github.com/KevinKickass/CorrectorMux/internal/mqtt"
	"github.com/KevinKickass/CorrectorMux/internal/storage"
	"github.com/KevinKickass/CorrectorMux/internal/supply"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

// healthInterval is how often the gRPC health status follows the poller.
const healthInterval = time.Second

// LifecycleManager wires the supply to its outer surfaces and owns their
// start and shutdown.
type LifecycleManager struct {
	config    *config.Config
	manager   *supply.Manager
	poller    *supply.Poller
	storage   *storage.PostgresClient
	publisher mqtt.Publisher
	logger    *zap.Logger

	authService  *auth.Service
	wsHub        *websocket.Hub
	restServer   *rest.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time
	fatalErr     error

	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager takes the supply components built by main. store and
// publisher may be nil when the database or MQTT are disabled.
func NewLifecycleManager(
	cfg *config.Config,
	manager *supply.Manager,
	poller *supply.Poller,
	store *storage.PostgresClient,
	publisher mqtt.Publisher,
	logger *zap.Logger,
) *LifecycleManager {
	authService := auth.NewService(cfg.Auth, logger)
	wsHub := websocket.NewHub(logger, authService)
	wsHub.SetSnapshotProvider(manager)

	return &LifecycleManager{
		config:       cfg,
		manager:      manager,
		poller:       poller,
		storage:      store,
		publisher:    publisher,
		logger:       logger,
		authService:  authService,
		wsHub:        wsHub,
		health:       health.NewServer(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts polling and all servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting corrector supply service")

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel
	lm.startedAt = time.Now()

	// WebSocket Hub und Snapshot-Verteilung
	lm.goRun(func() { lm.wsHub.Run(ctx) })
	wsSnaps := lm.manager.Subscribe()
	lm.goRun(func() {
		defer lm.manager.Unsubscribe(wsSnaps)
		lm.wsHub.ForwardSnapshots(ctx, wsSnaps)
	})

	if lm.publisher != nil {
		mqttSnaps := lm.manager.Subscribe()
		lm.goRun(func() {
			defer lm.manager.Unsubscribe(mqttSnaps)
			mqtt.Forward(ctx, mqttSnaps, lm.publisher, lm.logger)
		})
		lm.publishSystem(mqtt.EventStartup, "")
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.stopBackground()
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	if err := lm.startRESTServer(); err != nil {
		lm.grpcServer.Stop()
		lm.stopBackground()
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.poller.OnFatal = lm.handleFatal
	if err := lm.poller.Start(); err != nil {
		lm.grpcServer.Stop()
		lm.stopBackground()
		return fmt.Errorf("failed to start poller: %w", err)
	}
	lm.goRun(func() { lm.watchHealth(ctx) })

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.String("grpc_address", lm.GRPCAddr()),
		zap.String("http_address", lm.HTTPAddr()),
		zap.Bool("database", lm.storage != nil),
		zap.Bool("mqtt", lm.publisher != nil))

	return nil
}

func (lm *LifecycleManager) goRun(fn func()) {
	lm.wg.Add(1)
	go func() {
		defer lm.wg.Done()
		fn()
	}()
}

func (lm *LifecycleManager) stopBackground() {
	lm.cancel()
	lm.wg.Wait()
}

// handleFatal runs on the poll goroutine after polling stopped.
func (lm *LifecycleManager) handleFatal(err error) {
	lm.logger.Error("Supply driver stopped on fatal error", zap.Error(err))

	lm.stateMu.Lock()
	lm.fatalErr = err
	lm.stateMu.Unlock()
	lm.setState(StateError)

	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	lm.publishSystem(mqtt.EventFatal, err.Error())
}

// watchHealth keeps the gRPC health status in line with the poller.
func (lm *LifecycleManager) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	serving := false
	update := func() {
		healthy := lm.poller.Healthy()
		if healthy == serving {
			return
		}
		serving = healthy
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if healthy {
			status = healthpb.HealthCheckResponse_SERVING
		}
		lm.health.SetServingStatus("", status)
		lm.logger.Info("Health status changed", zap.Stringer("status", status))
	}

	for {
		update()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcListener = lis

	lm.grpcServer = grpc.NewServer()
	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	// kein typed nil im Interface
	var history interfaces.CommandHistory
	if lm.storage != nil {
		history = lm.storage
	}
	lm.restServer = rest.NewServer(lm.config, lm, lm.manager, history, lm.authService, lm.wsHub, lm.logger)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// 1. Polling stoppen, danach greift niemand mehr zyklisch auf den Bus zu
	lm.poller.Stop()
	lm.health.Shutdown()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}
	if err == nil {
		select {
		case err = <-errChan:
		default:
		}
	}

	// 4. Hub und Weiterleitungen beenden
	if lm.cancel != nil {
		lm.stopBackground()
	}

	if lm.publisher != nil {
		lm.publishSystem(mqtt.EventShutdown, "")
		lm.publisher.Close()
	}

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (lm *LifecycleManager) publishSystem(event, reason string) {
	if lm.publisher == nil {
		return
	}
	err := lm.publisher.PublishSystem(mqtt.SystemEvent{Timestamp: time.Now(), Event: event, Reason: reason})
	if err != nil {
		lm.logger.Warn("Failed to publish system event", zap.String("event", event), zap.Error(err))
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.currentState = state
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	fatalErr := lm.fatalErr
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:            state.String(),
		StartedAt:        lm.startedAt.Unix(),
		PollerRunning:    lm.poller.IsRunning(),
		PollerHealthy:    lm.poller.Healthy(),
		ConnectedClients: lm.wsHub.GetClientCount(),
		DatabaseEnabled:  lm.storage != nil,
		MQTTEnabled:      lm.publisher != nil,
	}
	if last := lm.poller.LastSuccess(); !last.IsZero() {
		status.LastPoll = last.Unix()
	}
	switch {
	case fatalErr != nil:
		status.LastError = fatalErr.Error()
	case lm.poller.LastError() != nil:
		status.LastError = lm.poller.LastError().Error()
	}
	return status
}

// Done is closed when Shutdown completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) GRPCAddr() string {
	if lm.grpcListener == nil {
		return ""
	}
	return lm.grpcListener.Addr().String()
}

func (lm *LifecycleManager) HTTPAddr() string {
	if lm.restServer == nil {
		return ""
	}
	return lm.restServer.Addr()
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
