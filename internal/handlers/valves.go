package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Valve health
// @Description  Per-valve health classes with aggregate counts.
// @Tags         valves
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "summary, valves"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/valves/health [get]
// @Security     BearerAuth
func (h *Handler) valveHealth(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"summary": h.services.Health.Summary(),
		"valves":  h.services.Monitoring.Valves(ctx),
	})
}

// @Summary      Retry unresponsive valves
// @Description  Re-issues the current desired setpoint to every unresponsive valve, resetting its attempt counter.
// @Tags         valves
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, retried"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/valves/retry [post]
// @Security     BearerAuth
func (h *Handler) retryUnresponsive(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.services.Controller.RetryUnresponsive(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to retry valves", "valve_retry_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "retried": n})
}
