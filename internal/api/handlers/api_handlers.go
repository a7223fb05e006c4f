// Package handlers exposes the kiosk HTTP API: profile management,
// enrollment control, weather, tips and the event stream.
package handlers

import (
	"net/http"

	"github.com/LakePipiCAKA/self-discovery/config"
	"github.com/LakePipiCAKA/self-discovery/internal/analysis"
	"github.com/LakePipiCAKA/self-discovery/internal/api/middleware"
	"github.com/LakePipiCAKA/self-discovery/internal/enroll"
	"github.com/LakePipiCAKA/self-discovery/internal/greeting"
	"github.com/LakePipiCAKA/self-discovery/internal/integrations/weather"
	"github.com/LakePipiCAKA/self-discovery/internal/pipeline"
	"github.com/LakePipiCAKA/self-discovery/internal/sse"
	"github.com/LakePipiCAKA/self-discovery/internal/util/timezone"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ProfileDeleter removes a persisted profile record.
type ProfileDeleter interface {
	DeleteProfile(identityID string) error
}

// APIHandler handles the kiosk API requests.
type APIHandler struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	deleter  ProfileDeleter
	weather  *weather.Client
	analyzer *analysis.Analyzer
	composer *greeting.Composer
	hub      *sse.Hub
}

// NewAPIHandler creates the handler with its collaborators.
func NewAPIHandler(cfg *config.Config, p *pipeline.Pipeline, deleter ProfileDeleter,
	weatherClient *weather.Client, analyzer *analysis.Analyzer,
	composer *greeting.Composer, hub *sse.Hub) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		pipeline: p,
		deleter:  deleter,
		weather:  weatherClient,
		analyzer: analyzer,
		composer: composer,
		hub:      hub,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/profiles", h.ListProfiles)
	router.GET("/profiles/:id", h.GetProfile)
	router.DELETE("/profiles/:id", h.DeleteProfile)
	router.GET("/profiles/:id/tips", h.GetTips)

	router.POST("/enroll", h.BeginEnrollment)
	router.POST("/enroll/cancel", h.CancelEnrollment)
	router.GET("/enroll/status", h.EnrollmentStatus)

	router.GET("/weather", h.GetWeather)
	router.GET("/greeting/:id", h.GetGreeting)
	router.GET("/status", h.GetStatus)
	router.GET("/events", h.Events)
}

// ListProfiles returns all enrolled identities.
func (h *APIHandler) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.pipeline.Profiles()})
}

// GetProfile returns one identity.
func (h *APIHandler) GetProfile(c *gin.Context) {
	prof, ok := h.pipeline.Profile(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, prof)
}

// DeleteProfile removes an identity from the store and the gallery.
func (h *APIHandler) DeleteProfile(c *gin.Context) {
	identityID := c.Param("id")
	if err := h.deleter.DeleteProfile(identityID); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		log.Errorf("Failed to delete profile %q: %v", identityID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete profile"})
		return
	}
	h.pipeline.RemoveProfile(identityID)
	c.JSON(http.StatusOK, gin.H{"message": "profile deleted"})
}

// GetTips analyzes the identity's recent snapshots and returns a localized
// wellbeing tip.
func (h *APIHandler) GetTips(c *gin.Context) {
	prof, ok := h.pipeline.Profile(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	result, err := h.analyzer.Analyze(prof.SampleImageRefs)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	lang := middleware.Language(c)
	c.JSON(http.StatusOK, gin.H{
		"tip":      h.composer.Localize(lang, result.TipKey, nil),
		"tip_key":  result.TipKey,
		"readings": result.Readings,
	})
}

// BeginEnrollment starts a new enrollment session.
func (h *APIHandler) BeginEnrollment(c *gin.Context) {
	var req enroll.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	status, err := h.pipeline.BeginEnrollment(req)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"state":            status.State.String(),
		"samples_required": status.SamplesRequired,
	})
}

// CancelEnrollment abandons the active session.
func (h *APIHandler) CancelEnrollment(c *gin.Context) {
	if !h.pipeline.CancelEnrollment() {
		c.JSON(http.StatusConflict, gin.H{"error": "no enrollment in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrollment cancelled"})
}

// EnrollmentStatus reports the active session, if any.
func (h *APIHandler) EnrollmentStatus(c *gin.Context) {
	status, active := h.pipeline.EnrollmentStatus()
	if !active {
		c.JSON(http.StatusOK, gin.H{"state": enroll.StateIdle.String()})
		return
	}

	resp := gin.H{
		"state":             status.State.String(),
		"step":              status.Step,
		"samples_collected": status.SamplesCollected,
		"samples_required":  status.SamplesRequired,
		"display_name":      status.DisplayName,
	}
	if status.CancelCause != "" {
		resp["cancel_cause"] = status.CancelCause
	}
	c.JSON(http.StatusOK, resp)
}

// GetWeather returns the current conditions for the kiosk location.
func (h *APIHandler) GetWeather(c *gin.Context) {
	if h.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather disabled"})
		return
	}
	current, err := h.weather.Fetch(c.Request.Context())
	if err != nil {
		log.Warnf("Weather fetch failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "weather unavailable"})
		return
	}
	c.JSON(http.StatusOK, current)
}

// GetGreeting renders the localized greeting line for an identity.
func (h *APIHandler) GetGreeting(c *gin.Context) {
	prof, ok := h.pipeline.Profile(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	now := timezone.Now()
	lang := middleware.Language(c)
	c.JSON(http.StatusOK, gin.H{
		"greeting": h.composer.Greet(lang, prof.DisplayName, timezone.Period(now)),
		"period":   timezone.Period(now),
	})
}
