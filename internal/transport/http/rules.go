package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/service/rules"
)

type RulesHandler struct {
	engine *rules.Service
}

func NewRulesHandler(engine *rules.Service) *RulesHandler {
	return &RulesHandler{engine: engine}
}

func (h *RulesHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/clients/:clientId/appointments/:id/can-reschedule", h.CanReschedule)
	g.GET("/clients/:id/can-reschedule", h.CanClientReschedule)
	g.POST("/clients/:clientId/appointments/:id/cancel", h.Cancel)
	g.POST("/clients/:clientId/appointments/:id/reschedule", h.Reschedule)

	g.POST("/policies", h.RegisterPolicy)
	g.GET("/policies/:id", h.GetPolicy)
}

func (h *RulesHandler) CanReschedule(c echo.Context) error {
	clientID, appointmentID, err := pairParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	decision, err := h.engine.CanReschedule(c.Request().Context(), clientID, appointmentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}

func (h *RulesHandler) CanClientReschedule(c echo.Context) error {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	decision, err := h.engine.CanClientReschedule(c.Request().Context(), clientID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}

func (h *RulesHandler) Cancel(c echo.Context) error {
	clientID, appointmentID, err := pairParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	updated, err := h.engine.Cancel(c.Request().Context(), clientID, appointmentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *RulesHandler) Reschedule(c echo.Context) error {
	clientID, appointmentID, err := pairParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	attached, err := h.engine.Reschedule(c.Request().Context(), clientID, appointmentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, attached)
}

type policyRequest struct {
	Name                          string `json:"name"`
	ReschedulingLimit             int    `json:"rescheduling_limit"`
	ReschedulingMinHoursInAdvance int    `json:"rescheduling_min_hours_in_advance"`
	MaxClientsPerGroup            int    `json:"max_clients_per_group"`
	Frequency                     string `json:"frequency"`
}

func (h *RulesHandler) RegisterPolicy(c echo.Context) error {
	var req policyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	policy, err := h.engine.RegisterPolicy(c.Request().Context(), rules.PolicyInput{
		Name:                          req.Name,
		ReschedulingLimit:             req.ReschedulingLimit,
		ReschedulingMinHoursInAdvance: req.ReschedulingMinHoursInAdvance,
		MaxClientsPerGroup:            req.MaxClientsPerGroup,
		Frequency:                     domain.Frequency(strings.ToUpper(req.Frequency)),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, policy)
}

func (h *RulesHandler) GetPolicy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid policy id")
	}
	policy, err := h.engine.GetPolicy(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, policy)
}

func pairParams(c echo.Context) (clientID, appointmentID uuid.UUID, err error) {
	clientID, err = uuid.Parse(c.Param("clientId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errInvalidClientID
	}
	appointmentID, err = uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errInvalidAppointmentID
	}
	return clientID, appointmentID, nil
}

var (
	errInvalidClientID      = paramError("invalid client id")
	errInvalidAppointmentID = paramError("invalid appointment id")
)

type paramError string

func (e paramError) Error() string { return string(e) }
