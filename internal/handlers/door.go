package handlers

import (
	"errors"
	"net/http"

	coopdoor "coop_door"
	"coop_door/internal/controller"
	"coop_door/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	statusOK              = "ok"
	statusRecovered       = "recovered"
	statusFaultsCleared   = "faults_cleared"
	statusOverrideSet     = "override_set"
	statusOverrideCleared = "override_cleared"

	errGetStatus = "failed to load door status"
)

// logAndJSONError logs err under logKey and writes userMsg with httpCode.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, coopdoor.ErrorResponse{Error: userMsg})
}

// commandError maps controller refusals to client errors; anything else is a 500.
func (h *Handler) commandError(c *gin.Context, logKey string, err error) {
	switch {
	case errors.Is(err, controller.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, coopdoor.ErrorResponse{Error: err.Error()})
	case errors.Is(err, controller.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, coopdoor.ErrorResponse{Error: err.Error()})
	case errors.Is(err, controller.ErrFaulted),
		errors.Is(err, controller.ErrNotFaulted),
		errors.Is(err, controller.ErrPositionUnknown),
		errors.Is(err, controller.ErrPersistPending):
		if h.log != nil {
			h.log.Infow(logKey, "err", err, "operator", operatorID(c))
		}
		c.JSON(http.StatusConflict, coopdoor.ErrorResponse{Error: err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "command failed", logKey, err)
	}
}

func (h *Handler) respondCommand(c *gin.Context, status string, st models.DoorStatus) {
	if h.log != nil {
		h.log.Infow("door_command", "status", status, "operator", operatorID(c), "state", st.State)
	}
	c.JSON(http.StatusOK, coopdoor.CommandResponse{Status: status, Door: st})
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

// @Summary      Door status
// @Description  Current state, sensor reading, faults and override.
// @Tags         door
// @Produce      json
// @Success      200  {object}  models.DoorStatus
// @Failure      401  {object}  coop_door.ErrorResponse
// @Failure      500  {object}  coop_door.ErrorResponse
// @Router       /api/v1/door/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "door_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Recover from a fault
// @Description  Stops the motor, re-reads the limit switches and settles on the observed position.
// @Tags         door
// @Produce      json
// @Success      200  {object}  coop_door.CommandResponse
// @Failure      401  {object}  coop_door.ErrorResponse
// @Failure      409  {object}  coop_door.ErrorResponse
// @Failure      500  {object}  coop_door.ErrorResponse
// @Router       /api/v1/door/recover [post]
// @Security     BearerAuth
func (h *Handler) recoverDoor(c *gin.Context) {
	st, err := h.services.Door.Recover(c.Request.Context())
	if err != nil {
		h.commandError(c, "door_recover_failed", err)
		return
	}
	h.respondCommand(c, statusRecovered, st)
}

// @Summary      Clear fault counters
// @Description  Resets fault counts and re-enables scheduled moves.
// @Tags         door
// @Produce      json
// @Success      200  {object}  coop_door.CommandResponse
// @Failure      401  {object}  coop_door.ErrorResponse
// @Failure      409  {object}  coop_door.ErrorResponse
// @Router       /api/v1/door/faults/clear [post]
// @Security     BearerAuth
func (h *Handler) clearFaults(c *gin.Context) {
	st, err := h.services.Door.ClearFaults(c.Request.Context())
	if err != nil {
		h.commandError(c, "door_clear_faults_failed", err)
		return
	}
	h.respondCommand(c, statusFaultsCleared, st)
}

// @Summary      Set override
// @Description  Forces the door target until the end of the schedule day.
// @Tags         door
// @Accept       json
// @Produce      json
// @Param        body  body      coop_door.OverrideRequest  true  "Override payload"
// @Success      200   {object}  coop_door.CommandResponse
// @Failure      400   {object}  coop_door.ErrorResponse
// @Failure      401   {object}  coop_door.ErrorResponse
// @Failure      409   {object}  coop_door.ErrorResponse
// @Router       /api/v1/door/override [post]
// @Security     BearerAuth
func (h *Handler) setOverride(c *gin.Context) {
	var req coopdoor.OverrideRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	st, err := h.services.Door.SetOverride(c.Request.Context(), req.Target)
	if err != nil {
		h.commandError(c, "door_set_override_failed", err)
		return
	}
	h.respondCommand(c, statusOverrideSet, st)
}

// @Summary      Clear override
// @Tags         door
// @Produce      json
// @Success      200  {object}  coop_door.CommandResponse
// @Failure      401  {object}  coop_door.ErrorResponse
// @Failure      409  {object}  coop_door.ErrorResponse
// @Router       /api/v1/door/override [delete]
// @Security     BearerAuth
func (h *Handler) clearOverride(c *gin.Context) {
	st, err := h.services.Door.ClearOverride(c.Request.Context())
	if err != nil {
		h.commandError(c, "door_clear_override_failed", err)
		return
	}
	h.respondCommand(c, statusOverrideCleared, st)
}
