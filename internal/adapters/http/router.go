// Package http exposes a local control API over the engine.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/VoiceClient/internal/app/engine"
	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
)

// Controller is the part of the engine the API drives.
type Controller interface {
	Status() engine.Status
	Participants() []domain.Participant
	AddTrack(ctx context.Context, cid, name string, kind livekit.TrackType, dims *core.TrackDimensions) (*livekit.TrackInfo, error)
	Negotiate() error
	UpdateMuteStatus(sid string, muted bool) error
	UpdateSubscription(sid string, subscribe bool) error
	RelayStats() []media.RelayStats
	Close()
}

type RouterConfig struct {
	Mode         string
	RateLimit    int
	RateInterval time.Duration
}

func genCID() string {
	return uuid.NewString()
}

func SetupRouter(cfg RouterConfig, ctl Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 20
	}
	interval := cfg.RateInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	limited := NewRateLimiter(limit, interval).Middleware()

	h := &handlers{ctl: ctl}
	api := r.Group("/api")
	api.GET("/state", h.state)
	api.GET("/participants", h.participants)
	api.GET("/relays", h.relays)
	api.POST("/tracks", limited, h.addTrack)
	api.POST("/tracks/:sid/mute", limited, h.muteTrack)
	api.POST("/subscriptions/:sid", limited, h.subscribe)
	api.POST("/leave", limited, h.leave)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

type handlers struct {
	ctl Controller
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Status())
}

func (h *handlers) participants(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Participants())
}

func (h *handlers) relays(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.RelayStats())
}

type addTrackRequest struct {
	Name   string `json:"name" binding:"required"`
	Kind   string `json:"kind" binding:"required"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

func parseKind(s string) (livekit.TrackType, bool) {
	switch strings.ToLower(s) {
	case "audio":
		return livekit.TrackType_AUDIO, true
	case "video":
		return livekit.TrackType_VIDEO, true
	case "data":
		return livekit.TrackType_DATA, true
	default:
		return livekit.TrackType_AUDIO, false
	}
}

func (h *handlers) addTrack(c *gin.Context) {
	var req addTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audio, video or data"})
		return
	}
	var dims *core.TrackDimensions
	if req.Width > 0 && req.Height > 0 {
		dims = &core.TrackDimensions{Width: req.Width, Height: req.Height}
	}

	cid := genCID()
	track, err := h.ctl.AddTrack(c.Request.Context(), cid, req.Name, kind, dims)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("cid", cid).Msg("add track failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "cid": cid})
		return
	}
	if err := h.ctl.Negotiate(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("negotiate after add track")
	}
	c.JSON(http.StatusCreated, gin.H{"cid": cid, "track": domain.NewTrack(track)})
}

func (h *handlers) muteTrack(c *gin.Context) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctl.UpdateMuteStatus(c.Param("sid"), req.Muted); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) subscribe(c *gin.Context) {
	var req struct {
		Subscribe bool `json:"subscribe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctl.UpdateSubscription(c.Param("sid"), req.Subscribe); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) leave(c *gin.Context) {
	h.ctl.Close()
	c.Status(http.StatusAccepted)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrDuplicateTrack), errors.Is(err, engine.ErrNotJoined), errors.Is(err, engine.ErrEngineClosed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrTrackPublishTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
