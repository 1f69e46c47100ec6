package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/service/scheduling"
)

// Wire formats for dates and times. Bodies carry "23/09/2026 14:00"; query
// parameters use dashes so they survive URLs unescaped.
const (
	dateTimeFormat  = "02/01/2006 15:04"
	queryDateFormat = "02-01-2006"
	queryMonth      = "01-2006"
	clockFormat     = "15:04"
)

type SchedulingHandler struct {
	scheduler *scheduling.Service
}

func NewSchedulingHandler(scheduler *scheduling.Service) *SchedulingHandler {
	return &SchedulingHandler{scheduler: scheduler}
}

func (h *SchedulingHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/appointments", h.Create)
	g.GET("/appointments", h.List)
	g.GET("/appointments/:id", h.Get)
	g.PUT("/appointments/:id", h.Update)
	g.POST("/appointments/:id/clients", h.AddClients)
	g.DELETE("/appointments/:id/clients/:clientId", h.RemoveClient)
	g.POST("/appointments/:id/clients/:clientId/absence", h.MarkAbsent)

	g.GET("/physiotherapists/:id/appointments", h.ListByPhysiotherapist)
	g.GET("/clients/:id/appointments", h.ListByClient)
	g.GET("/clients/:id/appointments/available", h.ListAvailable)
	g.POST("/clients/:id/replan", h.Replan)
}

type repeatRequest struct {
	Kind  string `json:"kind"`
	Count int    `json:"count,omitempty"`
}

func (r repeatRequest) policy() domain.RepeatPolicy {
	return domain.RepeatPolicy{
		Kind:  domain.RepeatKind(strings.ToLower(strings.TrimSpace(r.Kind))),
		Count: r.Count,
	}
}

type createAppointmentRequest struct {
	ClientIDs         []uuid.UUID   `json:"client_ids"`
	PhysiotherapistID uuid.UUID     `json:"physiotherapist_id"`
	DateTime          string        `json:"date_time"`
	Location          string        `json:"location"`
	Modality          string        `json:"modality"`
	Repeat            repeatRequest `json:"repeat"`
}

func (h *SchedulingHandler) Create(c echo.Context) error {
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	start, err := time.Parse(dateTimeFormat, req.DateTime)
	if err != nil {
		return badRequest(c, "date_time must use format "+dateTimeFormat)
	}

	created, err := h.scheduler.CreateAppointments(c.Request().Context(), scheduling.CreateInput{
		ClientIDs:         req.ClientIDs,
		PhysiotherapistID: req.PhysiotherapistID,
		StartTime:         start,
		Location:          domain.Location(strings.ToUpper(req.Location)),
		Modality:          domain.Modality(strings.ToUpper(req.Modality)),
		Repeat:            req.Repeat.policy(),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *SchedulingHandler) List(c echo.Context) error {
	if raw := c.QueryParam("date"); raw != "" {
		day, err := time.Parse(queryDateFormat, raw)
		if err != nil {
			return badRequest(c, "date must use format "+queryDateFormat)
		}
		details, err := h.scheduler.ListByDate(c.Request().Context(), day)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, details)
	}

	details, err := h.scheduler.ListAll(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *SchedulingHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}
	detail, err := h.scheduler.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

type updateAppointmentRequest struct {
	ClientID uuid.UUID `json:"client_id"`
	DateTime string    `json:"date_time"`
	Modality string    `json:"modality"`
}

func (h *SchedulingHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}
	var req updateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	newTime, err := time.Parse(dateTimeFormat, req.DateTime)
	if err != nil {
		return badRequest(c, "date_time must use format "+dateTimeFormat)
	}

	updated, err := h.scheduler.UpdateAppointment(c.Request().Context(), scheduling.UpdateInput{
		AppointmentID: id,
		ClientID:      req.ClientID,
		NewDateTime:   newTime,
		NewModality:   domain.Modality(strings.ToUpper(req.Modality)),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

type addClientsRequest struct {
	ClientIDs []uuid.UUID `json:"client_ids"`
}

func (h *SchedulingHandler) AddClients(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}
	var req addClientsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	attached, svcErr := h.scheduler.AddClients(c.Request().Context(), id, req.ClientIDs)
	if svcErr != nil {
		// Attachments made before the failure stand; the error names the
		// client that could not join.
		if len(attached) > 0 {
			return c.JSON(http.StatusMultiStatus, map[string]any{
				"attached": attached,
				"error":    svcErr.Error(),
			})
		}
		return writeError(c, svcErr)
	}
	return c.JSON(http.StatusCreated, attached)
}

func (h *SchedulingHandler) RemoveClient(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	if err := h.scheduler.RemoveClient(c.Request().Context(), clientID, appointmentID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SchedulingHandler) MarkAbsent(c echo.Context) error {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid appointment id")
	}
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	updated, err := h.scheduler.MarkAbsent(c.Request().Context(), clientID, appointmentID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *SchedulingHandler) ListByPhysiotherapist(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid physiotherapist id")
	}
	details, err := h.scheduler.ListByPhysiotherapist(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// ListByClient narrows by optional query parameters: future=true keeps only
// upcoming slots, modality and month filter the client's history.
func (h *SchedulingHandler) ListByClient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}

	modality := strings.ToUpper(c.QueryParam("modality"))
	monthRaw := c.QueryParam("month")
	if modality != "" || monthRaw != "" {
		in := scheduling.FilterInput{
			ClientID: id,
			Modality: domain.Modality(modality),
		}
		if monthRaw != "" {
			month, err := time.Parse(queryMonth, monthRaw)
			if err != nil {
				return badRequest(c, "month must use format "+queryMonth)
			}
			in.Month = month
		}
		details, err := h.scheduler.Filter(c.Request().Context(), in)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, details)
	}

	futureOnly := c.QueryParam("future") == "true"
	details, err := h.scheduler.ListByClient(c.Request().Context(), id, futureOnly)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *SchedulingHandler) ListAvailable(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	details, err := h.scheduler.FindAvailable(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

type replanRequest struct {
	PhysiotherapistID uuid.UUID           `json:"physiotherapist_id"`
	Location          string              `json:"location"`
	Modality          string              `json:"modality"`
	Repeat            repeatRequest       `json:"repeat"`
	DaysAndTimes      map[string][]string `json:"days_and_times"`
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

func (h *SchedulingHandler) Replan(c echo.Context) error {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid client id")
	}
	var req replanRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	daysAndTimes := make(map[time.Weekday][]scheduling.TimeOfDay, len(req.DaysAndTimes))
	for name, times := range req.DaysAndTimes {
		weekday, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return badRequest(c, "unknown weekday "+name)
		}
		for _, raw := range times {
			t, err := time.Parse(clockFormat, raw)
			if err != nil {
				return badRequest(c, "times must use format "+clockFormat)
			}
			daysAndTimes[weekday] = append(daysAndTimes[weekday], scheduling.TimeOfDay{
				Hour:   t.Hour(),
				Minute: t.Minute(),
			})
		}
	}

	created, err := h.scheduler.Replan(c.Request().Context(), scheduling.ReplanInput{
		ClientID:          clientID,
		PhysiotherapistID: req.PhysiotherapistID,
		Location:          domain.Location(strings.ToUpper(req.Location)),
		Modality:          domain.Modality(strings.ToUpper(req.Modality)),
		Repeat:            req.Repeat.policy(),
		DaysAndTimes:      daysAndTimes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
