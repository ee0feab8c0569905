package handlers

import (
	"errors"
	"io"
	"net/http"

	"roomheat/internal/models"
	"roomheat/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK          = "ok"
	statusAutoModeSet = "auto_mode_set"
	statusForced      = "forced"
	statusSynced      = "synced"

	errListRooms       = "failed to load rooms"
	errGetRoom         = "failed to load room"
	errSetAutoMode     = "failed to set auto mode"
	errForceTemp       = "failed to force temperature"
	errSyncvalves      = "failed to sync valves"
	errInvalidBodyPref = "invalid body: "
	errUnknownRoomMsg  = "unknown room"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status and include the room's current snapshot if
// available (best-effort).
func (h *Handler) respondWithRoomStatus(c *gin.Context, status string, id models.RoomID, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status, "room_id": id}
	for k, v := range extra {
		resp[k] = v
	}
	if st, err := h.services.Monitoring.Room(ctx, id); err == nil {
		resp["room"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// AutoModeRequest is the payload for toggling a room's automation.
type AutoModeRequest struct {
	// Enabled turns heating automation on or off for the room.
	Enabled *bool `json:"enabled" binding:"required" example:"true"`
}

// TemperatureRequest is the payload for force and sync operations. The
// temperature is optional; when omitted, the room's occupied default is
// used.
type TemperatureRequest struct {
	// Target temperature in Celsius (5.0–30.0)
	Temperature float64 `json:"temperature,omitempty" example:"21.5"`
}

// bindOptionalTemperature accepts a TemperatureRequest body or no body at
// all. Returns false after writing the 400 response.
func (h *Handler) bindOptionalTemperature(c *gin.Context, req *TemperatureRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List rooms
// @Description  Heating status of every known room, with state counts and the booking snapshot age.
// @Tags         rooms
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, states, last_refresh, rooms"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/rooms [get]
// @Security     BearerAuth
func (h *Handler) listRooms(c *gin.Context) {
	ctx := c.Request.Context()
	rooms := h.services.Monitoring.Rooms(ctx)

	states := make(map[models.RoomState]int, 5)
	for _, r := range rooms {
		states[r.State]++
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(rooms),
		"states":       states,
		"last_refresh": h.services.Monitoring.LastRefresh(),
		"rooms":        rooms,
	})
}

// @Summary      Get room
// @Description  One room's heating state, current booking, derived schedule and valves.
// @Tags         rooms
// @Produce      json
// @Param        id   path      string  true  "Room id"
// @Success      200  {object}  service.RoomStatus
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/rooms/{id} [get]
// @Security     BearerAuth
func (h *Handler) getRoom(c *gin.Context) {
	ctx := c.Request.Context()
	id := models.RoomID(c.Param("id"))

	st, err := h.services.Monitoring.Room(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownRoom) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownRoomMsg})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetRoom, "room_get_failed", err, "room", id)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Set auto mode
// @Description  Enables or disables heating automation for the room. Re-enabling clears any forced temperature.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path   string           true  "Room id"
// @Param        body  body   AutoModeRequest  true  "Auto mode payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/auto-mode [post]
// @Security     BearerAuth
func (h *Handler) setAutoMode(c *gin.Context) {
	var req AutoModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	ctx := c.Request.Context()
	id := models.RoomID(c.Param("id"))
	if err := h.services.Controller.SetAutoMode(ctx, id, *req.Enabled); err != nil {
		if errors.Is(err, service.ErrUnknownRoom) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownRoomMsg})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSetAutoMode, "auto_mode_failed", err, "room", id)
		return
	}
	h.respondWithRoomStatus(c, statusAutoModeSet, id, gin.H{"enabled": *req.Enabled})
}

// @Summary      Force temperature
// @Description  Pins the room's valves to an explicit setpoint and disables auto mode. Omitting the temperature uses the room's occupied default.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path   string              true   "Room id"
// @Param        body  body   TemperatureRequest  false  "Temperature payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/force-temperature [post]
// @Security     BearerAuth
func (h *Handler) forceTemperature(c *gin.Context) {
	var req TemperatureRequest
	if !h.bindOptionalTemperature(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := models.RoomID(c.Param("id"))
	if err := h.services.Controller.ForceTemperature(ctx, id, req.Temperature); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownRoom):
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownRoomMsg})
		case errors.Is(err, service.ErrTargetRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logAndJSONError(c, http.StatusInternalServerError, errForceTemp, "force_temperature_failed", err, "room", id)
		}
		return
	}
	h.respondWithRoomStatus(c, statusForced, id, gin.H{})
}

// @Summary      Sync valves
// @Description  Pushes the room's current desired setpoint to every sync target without touching auto mode.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Param        id    path   string              true   "Room id"
// @Param        body  body   TemperatureRequest  false  "Temperature payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/rooms/{id}/sync [post]
// @Security     BearerAuth
func (h *Handler) syncRoomValves(c *gin.Context) {
	var req TemperatureRequest
	if !h.bindOptionalTemperature(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := models.RoomID(c.Param("id"))
	if err := h.services.Controller.SyncValves(ctx, id, req.Temperature); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownRoom):
			c.JSON(http.StatusNotFound, gin.H{"error": errUnknownRoomMsg})
		case errors.Is(err, service.ErrTargetRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logAndJSONError(c, http.StatusInternalServerError, errSyncvalves, "sync_valves_failed", err, "room", id)
		}
		return
	}
	h.respondWithRoomStatus(c, statusSynced, id, gin.H{})
}
