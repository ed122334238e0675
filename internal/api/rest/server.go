package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/api/websocket"
	"github.com/KevinKickass/CorrectorMux/internal/auth"
	"github.com/KevinKickass/CorrectorMux/internal/config"
	"github.com/KevinKickass/CorrectorMux/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	supply      interfaces.SupplyController
	history     interfaces.CommandHistory
	logger      *zap.Logger
	server      *http.Server
	listener    net.Listener
	wsHub       *websocket.Hub
	authService *auth.Service
}

// NewServer builds the REST API. history may be nil when no database is
// configured.
func NewServer(
	cfg *config.Config,
	lm interfaces.LifecycleManager,
	supply interfaces.SupplyController,
	history interfaces.CommandHistory,
	authService *auth.Service,
	wsHub *websocket.Hub,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		supply:      supply,
		history:     history,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = lis

	s.logger.Info("Starting REST API server", zap.String("address", lis.Addr().String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		v1.POST("/auth/login", s.login)

		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.Middleware())
		{
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== SUPPLY ====================
		supply := v1.Group("/supply")
		supply.Use(s.authService.Middleware())
		{
			// Read: Operator+
			supply.GET("/status", auth.RequireRole(auth.RoleOperator), s.getSupplyStatus)
			supply.GET("/summary", auth.RequireRole(auth.RoleOperator), s.getSupplySummary)

			// Supply-wide commands: Admin only
			supply.POST("/power", auth.RequireRole(auth.RoleAdmin), s.setPower)
			supply.POST("/configure", auth.RequireRole(auth.RoleAdmin), s.configure)
			supply.GET("/outputs/:module", auth.RequireRole(auth.RoleAdmin), s.getOutputGroup)
			supply.GET("/commands", auth.RequireRole(auth.RoleAdmin), s.listCommands)
		}

		// ==================== CHANNELS (OPERATOR+) ====================
		channels := v1.Group("/channels")
		channels.Use(s.authService.Middleware())
		channels.Use(auth.RequireRole(auth.RoleOperator))
		{
			channels.GET("", s.listChannels)
			channels.GET("/:index", s.getChannel)
			channels.POST("/:index/on", s.switchOn)
			channels.POST("/:index/off", s.switchOff)
			channels.PUT("/:index/setpoint", s.setSetpoint)
		}

		// ==================== SYSTEM (OPERATOR+) ====================
		system := v1.Group("/system")
		system.Use(s.authService.Middleware())
		system.Use(auth.RequireRole(auth.RoleOperator))
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		v1.GET("/ws/live", s.wsLiveConnection)
		v1.GET("/ws/status", s.authService.Middleware(), auth.RequireRole(auth.RoleOperator), s.wsStatus)
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	code := http.StatusOK
	if !status.PollerHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status.State,
		"polling":   status.PollerHealthy,
		"timestamp": time.Now().Unix(),
	})
}
