package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/KevinKickass/CorrectorMux/internal/auth"
	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"github.com/KevinKickass/CorrectorMux/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCommandLimit = 50
	maxCommandLimit     = 500
)

type SwitchOnRequest struct {
	Force bool `json:"force"`
}

type SetpointRequest struct {
	Value *int `json:"value" binding:"required"`
}

type PowerRequest struct {
	On *bool `json:"on" binding:"required"`
}

type ChannelCommandResponse struct {
	CommandID uuid.UUID       `json:"command_id"`
	Channel   mux.ChannelView `json:"channel"`
}

type SupplyCommandResponse struct {
	CommandID uuid.UUID `json:"command_id"`
	Status    string    `json:"status"`
}

// channelParam parses :index and answers 404 for anything but 0..11.
func channelParam(c *gin.Context) (int, bool) {
	ch, err := strconv.Atoi(c.Param("index"))
	if err != nil || ch < 0 || ch >= mux.ChannelCount {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "Unknown channel", c.Param("index")))
		return 0, false
	}
	return ch, true
}

// GET /api/v1/supply/status
func (s *Server) getSupplyStatus(c *gin.Context) {
	snap := s.supply.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status": snap.StatusLine(),
		"supply": snap,
	})
}

// GET /api/v1/supply/summary
func (s *Server) getSupplySummary(c *gin.Context) {
	c.String(http.StatusOK, s.supply.Summary())
}

// GET /api/v1/channels
func (s *Server) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": s.supply.Snapshot().Channels})
}

// GET /api/v1/channels/:index
func (s *Server) getChannel(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	view, err := s.supply.Channel(ch)
	if err != nil {
		s.respondError(c, uuid.Nil, "Failed to read channel", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// POST /api/v1/channels/:index/on
func (s *Server) switchOn(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	var req SwitchOnRequest
	// leerer Body ist erlaubt
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	id, err := s.supply.SwitchOn(c.Request.Context(), auth.Actor(c), ch, req.Force)
	s.respondChannelCommand(c, id, ch, "Failed to switch channel on", err)
}

// POST /api/v1/channels/:index/off
func (s *Server) switchOff(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	id, err := s.supply.SwitchOff(c.Request.Context(), auth.Actor(c), ch)
	s.respondChannelCommand(c, id, ch, "Failed to switch channel off", err)
}

// PUT /api/v1/channels/:index/setpoint
func (s *Server) setSetpoint(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	var req SetpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	id, err := s.supply.SetSetpoint(c.Request.Context(), auth.Actor(c), ch, *req.Value)
	s.respondChannelCommand(c, id, ch, "Failed to set setpoint", err)
}

func (s *Server) respondChannelCommand(c *gin.Context, id uuid.UUID, ch int, message string, err error) {
	if err != nil {
		s.respondError(c, id, message, err)
		return
	}
	view, err := s.supply.Channel(ch)
	if err != nil {
		s.respondError(c, id, message, err)
		return
	}
	c.JSON(http.StatusOK, ChannelCommandResponse{CommandID: id, Channel: view})
}

// POST /api/v1/supply/power
func (s *Server) setPower(c *gin.Context) {
	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	var id uuid.UUID
	var err error
	if *req.On {
		id, err = s.supply.PowerOn(c.Request.Context(), auth.Actor(c))
	} else {
		id, err = s.supply.PowerOff(c.Request.Context(), auth.Actor(c))
	}
	if err != nil {
		s.respondError(c, id, "Failed to switch supply power", err)
		return
	}
	c.JSON(http.StatusOK, SupplyCommandResponse{CommandID: id, Status: s.supply.Snapshot().StatusLine()})
}

// POST /api/v1/supply/configure
func (s *Server) configure(c *gin.Context) {
	id, err := s.supply.Configure(c.Request.Context(), auth.Actor(c))
	if err != nil {
		s.respondError(c, id, "Failed to configure analog modules", err)
		return
	}
	c.JSON(http.StatusOK, SupplyCommandResponse{CommandID: id, Status: s.supply.Snapshot().StatusLine()})
}

// GET /api/v1/supply/outputs/:module
func (s *Server) getOutputGroup(c *gin.Context) {
	module, err := strconv.Atoi(c.Param("module"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid module", c.Param("module")))
		return
	}
	group, err := s.supply.ReadOutputGroup(c.Request.Context(), module)
	if err != nil {
		s.respondError(c, uuid.Nil, "Failed to read output module", err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// GET /api/v1/supply/commands?limit=N
func (s *Server) listCommands(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeStorageDisabled, "Command history requires a database", nil))
		return
	}

	limit := defaultCommandLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxCommandLimit {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid limit", q))
			return
		}
		limit = n
	}

	cmds, err := s.history.RecentCommands(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to load command history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeStorageFailure, "Failed to load command history", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": cmds})
}
