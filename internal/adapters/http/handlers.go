package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Proctor/internal/adapters/analysis"
	"github.com/dkeye/Proctor/internal/app/proctor"
	"github.com/dkeye/Proctor/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RoomReader is the read side of the room registry.
type RoomReader interface {
	Members(sid domain.SessionID) []domain.Member
	Len() int
}

type Handlers struct {
	Publisher proctor.Publisher
	Analyzer  analysis.Analyzer
	Rooms     RoomReader
	ICE       webrtc.Configuration
	// Connections reports open signaling connections for health output.
	Connections func() int

	frames *sessionLimiter
}

type analyzeFrameRequest struct {
	FrameData string `json:"frameData" binding:"required"`
}

// publishProctoring accepts an analysis object from the surrounding
// application and fans it out to the session.
func (h *Handlers) publishProctoring(c *gin.Context) {
	sid := domain.SessionID(c.Param("sessionId"))
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
		return
	}

	n, err := h.Publisher.Publish(c.Request.Context(), sid, body)
	switch {
	case errors.Is(err, proctor.ErrNoSession), errors.Is(err, proctor.ErrInvalidAnalysis):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("session_id", string(sid)).Msg("publish proctoring")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "publish failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "delivered": n})
}

// analyzeFrame forwards a frame to the analysis service and broadcasts the
// result to the session's room.
func (h *Handlers) analyzeFrame(c *gin.Context) {
	sid := domain.SessionID(c.Param("sessionId"))
	var req analyzeFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No frame data provided"})
		return
	}
	if h.frames != nil && !h.frames.Allow(sid) {
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "too many frames"})
		return
	}

	result, err := h.Analyzer.AnalyzeFrame(c.Request.Context(), sid, req.FrameData)
	switch {
	case errors.Is(err, analysis.ErrFrameRejected):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		log.Warn().Err(err).Str("module", "adapters.http").Str("session_id", string(sid)).Msg("analyze frame")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Proctoring analysis failed"})
		return
	}

	n, err := h.Publisher.Publish(c.Request.Context(), sid, result)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("session_id", string(sid)).Msg("publish analysis")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": result, "delivered": n})
}

func (h *Handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.ICE.ICEServers})
}

func (h *Handlers) room(c *gin.Context) {
	sid := domain.SessionID(c.Param("sessionId"))
	members := h.Rooms.Members(sid)
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sid, "members": members})
}

func (h *Handlers) health(c *gin.Context) {
	resp := gin.H{"status": "ok", "rooms": h.Rooms.Len()}
	if h.Connections != nil {
		resp["connections"] = h.Connections()
	}
	c.JSON(http.StatusOK, resp)
}
