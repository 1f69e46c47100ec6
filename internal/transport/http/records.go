package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"physiofit/backend/internal/service/records"
)

type RecordsHandler struct {
	registry *records.Service
}

func NewRecordsHandler(registry *records.Service) *RecordsHandler {
	return &RecordsHandler{registry: registry}
}

func (h *RecordsHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/clients", h.RegisterClient)
	g.GET("/clients", h.ListClients)
	g.GET("/clients/:id", h.GetClient)
	g.GET("/clients/:id/schedule", h.ClientSchedule)
	g.POST("/clients/:id/payments", h.RecordPayment)

	g.POST("/physiotherapists", h.RegisterPhysiotherapist)
	g.GET("/physiotherapists", h.ListPhysiotherapists)

	g.POST("/business-rules", h.CreateBusinessRule)
	g.GET("/business-rules", h.ListBusinessRules)
}

type clientRequest struct {
	Name           string    `json:"name"`
	SignedContract string    `json:"signed_contract,omitempty"`
	RulesID        uuid.UUID `json:"appointment_rules_id"`
}

func (h *RecordsHandler) RegisterClient(c echo.Context) error {
	var req clientRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	in := records.ClientInput{
		Name:    req.Name,
		RulesID: req.RulesID,
	}
	if req.SignedContract != "" {
		signed, err := time.Parse(queryDateFormat, req.SignedContract)
		if err != nil {
			return badRequest(c, "signed_contract must use format "+queryDateFormat)
		}
		in.SignedContract = &signed
	}
	client, err := h.registry.RegisterClient(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, client)
}

func (h *RecordsHandler) ListClients(c echo.Context) error {
	withAppointmentsOnly := c.QueryParam("with_appointments") == "true"
	clients, err := h.registry.ListClients(c.Request().Context(), withAppointmentsOnly)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, clients)
}

func (h *RecordsHandler) GetClient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	client, err := h.registry.GetClient(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, client)
}

func (h *RecordsHandler) ClientSchedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	summary, err := h.registry.ClientSchedule(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

type paymentRequest struct {
	Confirmed string `json:"confirmed"`
}

func (h *RecordsHandler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	confirmed, err := time.Parse(queryDateFormat, req.Confirmed)
	if err != nil {
		return badRequest(c, "confirmed must use format "+queryDateFormat)
	}
	payment, err := h.registry.RecordPayment(c.Request().Context(), id, confirmed)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, payment)
}

type physiotherapistRequest struct {
	Name string `json:"name"`
}

func (h *RecordsHandler) RegisterPhysiotherapist(c echo.Context) error {
	var req physiotherapistRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	physio, err := h.registry.RegisterPhysiotherapist(c.Request().Context(), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, physio)
}

func (h *RecordsHandler) ListPhysiotherapists(c echo.Context) error {
	physios, err := h.registry.ListPhysiotherapists(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, physios)
}

type businessRuleRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *RecordsHandler) CreateBusinessRule(c echo.Context) error {
	var req businessRuleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	rule, err := h.registry.CreateBusinessRule(c.Request().Context(), req.Title, req.Body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *RecordsHandler) ListBusinessRules(c echo.Context) error {
	rulesList, err := h.registry.ListBusinessRules(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rulesList)
}
