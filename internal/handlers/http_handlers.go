package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"roulette/internal/models"
	"roulette/internal/services"
	"roulette/internal/session"
)

const (
	flashCookie  = "roulette_saved"
	flashMaxAge  = 60
	liveKey      = "liveSession"
	roulettePath = "/roulettes/"
)

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	service *services.RouletteService
	live    *services.LiveSessions
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.RouletteService, live *services.LiveSessions) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		live:    live,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/roulettes/:hash", h.ShowRoulette)

	api := router.Group("/api")
	api.POST("/roulettes", h.SaveRoulette)
	api.GET("/roulettes/:hash", h.GetRoulette)

	api.POST("/live", h.CreateLiveSession)
	live := api.Group("/live/:id")
	live.Use(h.LiveSessionMiddleware())
	live.GET("", h.GetLiveSession)
	live.DELETE("", h.DeleteLiveSession)
	live.GET("/ws", h.ServeWebSocket)
	live.POST("/participants", h.AddParticipant)
	live.PATCH("/participants/:key", h.UpdateParticipant)
	live.DELETE("/participants/:key", h.RemoveParticipant)
	live.POST("/participants/:key/hit", h.simple("toggleHit"))
	live.POST("/participants/:key/move", h.MoveParticipant)
	live.POST("/spin", h.simple("spin"))
	live.POST("/confirm", h.simple("confirm"))
	live.POST("/retry", h.simple("retry"))
	live.POST("/reset", h.simple("reset"))
	live.POST("/save", h.simple("save"))
	live.PUT("/autosave", h.SetAutoSave)
}

// Health reports that the process is serving.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "liveSessions": h.live.Len()})
}

// SaveRoulette creates or updates a persisted roulette.
func (h *HTTPHandler) SaveRoulette(c *gin.Context) {
	var req models.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warningf("Invalid save request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetRoulette returns a persisted roulette, or null when there is none.
func (h *HTTPHandler) GetRoulette(c *gin.Context) {
	view, err := h.service.Load(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ShowRoulette is the address a client lands on after a save. With
// ?saved=1 it stores a one-time success flag and redirects to the clean
// address, which reads and clears the flag.
func (h *HTTPHandler) ShowRoulette(c *gin.Context) {
	hash := c.Param("hash")
	if c.Query("saved") != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(flashCookie, "1", flashMaxAge, "/", "", false, true)
		c.Redirect(http.StatusSeeOther, roulettePath+url.PathEscape(hash))
		return
	}

	showSuccess := false
	if v, err := c.Cookie(flashCookie); err == nil && v != "" {
		showSuccess = true
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	}

	view, err := h.service.Load(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roulette": view, "showSuccess": showSuccess})
}

type createLiveRequest struct {
	Hash string `json:"hash" binding:"max=256"`
}

// CreateLiveSession opens a controller for a new or stored roulette.
func (h *HTTPHandler) CreateLiveSession(c *gin.Context) {
	var req createLiveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ls, err := h.live.Create(c.Request.Context(), req.Hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLiveResponse(ls, true, nil))
}

// LiveSessionMiddleware resolves the :id path parameter to a live session.
func (h *HTTPHandler) LiveSessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ls, ok := h.live.Get(c.Param("id"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "live session not found"})
			return
		}
		c.Set(liveKey, ls)
		c.Next()
	}
}

// GetLiveSession returns the state of a live session.
func (h *HTTPHandler) GetLiveSession(c *gin.Context) {
	c.JSON(http.StatusOK, newLiveResponse(liveSession(c), false, nil))
}

// DeleteLiveSession closes a live session, flushing pending saves.
func (h *HTTPHandler) DeleteLiveSession(c *gin.Context) {
	h.live.ClearSession(liveSession(c).ID)
	c.Status(http.StatusNoContent)
}

type participantRequest struct {
	Name  string `json:"name" binding:"omitempty,max=256"`
	Emoji string `json:"emoji" binding:"omitempty,max=16"`
}

// AddParticipant adds a participant to a live session.
func (h *HTTPHandler) AddParticipant(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, command{Type: "add", Name: req.Name})
}

// UpdateParticipant renames a participant and/or changes its emoji.
func (h *HTTPHandler) UpdateParticipant(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" && req.Emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name or emoji is required"})
		return
	}
	var cmds []command
	if req.Name != "" {
		cmds = append(cmds, command{Type: "rename", LocalKey: c.Param("key"), Name: req.Name})
	}
	if req.Emoji != "" {
		cmds = append(cmds, command{Type: "emoji", LocalKey: c.Param("key"), Emoji: req.Emoji})
	}
	h.run(c, cmds...)
}

// RemoveParticipant removes a participant from a live session.
func (h *HTTPHandler) RemoveParticipant(c *gin.Context) {
	h.run(c, command{Type: "remove", LocalKey: c.Param("key")})
}

type moveRequest struct {
	Direction string `json:"direction" binding:"required,oneof=up down"`
}

// MoveParticipant moves a participant up or down.
func (h *HTTPHandler) MoveParticipant(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, command{Type: "move", LocalKey: c.Param("key"), Direction: req.Direction})
}

type autoSaveRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetAutoSave turns auto-save on or off for a live session.
func (h *HTTPHandler) SetAutoSave(c *gin.Context) {
	var req autoSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, command{Type: "autosave", Enabled: req.Enabled})
}

// simple handles routes whose command needs nothing but the path.
func (h *HTTPHandler) simple(typ string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.run(c, command{Type: typ, LocalKey: c.Param("key")})
	}
}

func (h *HTTPHandler) run(c *gin.Context, cmds ...command) {
	ls := liveSession(c)
	changed := false
	var err error
	for _, cmd := range cmds {
		var ok bool
		ok, err = apply(c.Request.Context(), ls, cmd)
		changed = changed || ok
		if err != nil {
			break
		}
	}
	if changed {
		ls.PublishState()
	}
	if errors.Is(err, errBadCommand) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusFor(err), newLiveResponse(ls, changed, err))
}

type liveResponse struct {
	ID            string                 `json:"id"`
	Changed       bool                   `json:"changed"`
	State         session.State          `json:"state"`
	Notifications []session.Notification `json:"notifications,omitempty"`
	Redirect      string                 `json:"redirect,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

func newLiveResponse(ls *services.LiveSession, changed bool, err error) liveResponse {
	notifications, redirect := ls.Drain()
	resp := liveResponse{
		ID:            ls.ID,
		Changed:       changed,
		State:         ls.Controller.State(),
		Notifications: notifications,
		Redirect:      redirect,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func liveSession(c *gin.Context) *services.LiveSession {
	return c.MustGet(liveKey).(*services.LiveSession)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrRouletteNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidParticipant), errors.Is(err, models.ErrInvalidHash):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its HTTP status.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
