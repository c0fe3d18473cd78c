package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	nest "github.com/gleadbet/nest"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// kindStatus maps an error kind to the HTTP status the API promises.
func kindStatus(k nest.Kind) int {
	switch k {
	case nest.KindAuthRequired, nest.KindAuthExpired:
		return http.StatusUnauthorized
	case nest.KindConsentRequired, nest.KindPermissionDenied:
		return http.StatusForbidden
	case nest.KindNotFound:
		return http.StatusNotFound
	case nest.KindRateLimited:
		return http.StatusTooManyRequests
	case nest.KindValidation:
		return http.StatusBadRequest
	case nest.KindInvalidMode:
		return http.StatusConflict
	case nest.KindTransient, nest.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates a service error into the API's error envelope.
// reauth tells the frontend to restart the login flow.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := nest.KindOf(err)
	status := kindStatus(kind)
	if status >= http.StatusInternalServerError && h.log != nil {
		h.log.Errorw("request_failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{
		"error":   string(kind),
		"details": err.Error(),
		"reauth":  nest.Reauth(err),
	})
}

// Request DTO for setting a temperature setpoint.
type temperatureRequest struct {
	Mode   string  `json:"mode" binding:"required"` // heat | cool
	ValueC float64 `json:"value_c" binding:"required"`
}

// SetTemperatureRequest is an exported model for Swagger docs of the setpoint payload.
type SetTemperatureRequest struct {
	// Setpoint side to write. Allowed: heat, cool; must match the device's current mode.
	Mode string `json:"mode" example:"heat"`
	// Target temperature in Celsius, 9.0 to 32.0 inclusive.
	ValueC float64 `json:"value_c" example:"21.5"`
}

type deviceModeRequest struct {
	Mode string `json:"mode" binding:"required"` // HEAT | COOL | HEATCOOL | ECO | OFF
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      List thermostats
// @Description  Returns the normalized device list. Results are cached briefly; force=true bypasses the cache.
// @Tags         devices
// @Produce      json
// @Param        force  query  bool  false  "Bypass the device cache"
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/devices [get]
func (h *Handler) listDevices(c *gin.Context) {
	force := c.Query("force") == "true"
	devices, err := h.services.List(c.Request.Context(), currentSession(c), force)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(devices),
		"devices": devices,
	})
}

// @Summary      Get one thermostat
// @Tags         devices
// @Produce      json
// @Param        id  path  string  true  "Device id"
// @Success      200  {object}  nest.Device
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/devices/{id} [get]
func (h *Handler) getDevice(c *gin.Context) {
	device, err := h.services.Get(c.Request.Context(), currentSession(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// @Summary      Temperature history
// @Description  Recorded samples for one device. If 'to' is date-only it is treated as end-of-day inclusive.
// @Tags         devices
// @Produce      json
// @Param        id    path   string  true   "Device id"
// @Param        from  query  string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2026-08-01)
// @Param        to    query  string  false  "End of range; date-only treated as end of day"  example(2026-08-31)
// @Success      200   {object}  map[string]interface{}  "count, readings"
// @Failure      400   {object}  map[string]string
// @Router       /api/devices/{id}/temperature-history [get]
func (h *Handler) temperatureHistory(c *gin.Context) {
	var from, to time.Time
	var err error

	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}

	readings, err := h.services.History(c.Request.Context(), currentSession(c), c.Param("id"), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(readings),
		"readings": readings,
	})
}

// @Summary      Set temperature setpoint
// @Description  Writes the heat or cool setpoint. The requested side must match the device's current mode; eco devices reject writes.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Device id"
// @Param        body  body  SetTemperatureRequest  true  "Setpoint payload"
// @Success      200   {object}  map[string]interface{}  "devices"
// @Failure      400   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]interface{}
// @Router       /api/devices/{id}/temperature [post]
func (h *Handler) setTemperature(c *gin.Context) {
	var req temperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	kind := nest.ParseMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	devices, err := h.services.SetTemperature(c.Request.Context(), currentSession(c), c.Param("id"), kind, req.ValueC)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// @Summary      Set thermostat mode
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "Device id"
// @Param        body  body  object  true  "Mode payload, e.g. {\"mode\":\"HEAT\"}"
// @Success      200   {object}  map[string]interface{}  "devices"
// @Failure      400   {object}  map[string]interface{}
// @Router       /api/devices/{id}/mode [post]
func (h *Handler) setDeviceMode(c *gin.Context) {
	var req deviceModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	mode := nest.ParseMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	devices, err := h.services.SetMode(c.Request.Context(), currentSession(c), c.Param("id"), mode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// @Summary      Rename a thermostat
// @Description  Stores a per-session display name; the upstream device name is untouched.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "Device id"
// @Param        body  body  object  true  "Name payload, e.g. {\"name\":\"Hallway\"}"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]interface{}
// @Router       /api/devices/{id}/name [post]
func (h *Handler) renameDevice(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if err := h.services.Rename(c.Request.Context(), currentSession(c), c.Param("id"), req.Name); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}

// isDateOnly reports whether the query string has no time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", s)
}
