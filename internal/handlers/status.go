package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errGetState    = "failed to load state"
	errNoAggregate = "no aggregate temperature yet"
)

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

// @Summary      Controller status
// @Description  Last committed control-loop snapshot.
// @Tags         status
// @Produce      json
// @Success      200  {object}  models.ControllerState
// @Failure      500  {object}  map[string]string
// @Router       /status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "status_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Aggregate temperature
// @Description  Plain-text aggregated temperature in Celsius with three decimals.
// @Tags         status
// @Produce      plain
// @Success      200  {string}  string  "42.000"
// @Failure      503  {string}  string
// @Router       /temp [get]
func (h *Handler) getTemp(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		if h.log != nil {
			h.log.Errorw("temp_get_state_failed", "err", err)
		}
		c.String(http.StatusInternalServerError, errGetState+"\n")
		return
	}
	if st.AggregateTempC == nil {
		c.String(http.StatusServiceUnavailable, errNoAggregate+"\n")
		return
	}
	c.String(http.StatusOK, "%.3f\n", *st.AggregateTempC)
}
