package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Refresh bookings
// @Description  Fetches the provider's room catalog and bookings now and re-evaluates every room. On failure the previous snapshot stays in effect.
// @Tags         bookings
// @Produce      json
// @Success      200  {object}  service.RefreshResult
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/bookings/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshBookings(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.services.Bookings.Refresh(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, "booking refresh failed", "booking_refresh_failed", err)
		return
	}
	h.services.Controller.Evaluate(ctx)
	c.JSON(http.StatusOK, res)
}
