package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"physiofit/backend/internal/domain"
	"physiofit/backend/internal/service/scheduling"
	"physiofit/backend/internal/store"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("appointment: %w", store.ErrNotFound), http.StatusNotFound},
		{"already booked", store.ErrAlreadyBooked, http.StatusConflict},
		{"already associated", store.ErrAlreadyAssociated, http.StatusConflict},
		{"group full", fmt.Errorf("client x: %w", store.ErrGroupFull), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext()
			if err := writeError(c, tc.err); err != nil {
				t.Fatalf("writeError returned %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWriteError_ValidationIsBadRequest(t *testing.T) {
	c, rec := newTestContext()
	_, err := scheduling.NewService(nil, nil).CreateAppointments(c.Request().Context(), scheduling.CreateInput{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if wErr := writeError(c, err); wErr != nil {
		t.Fatalf("writeError returned %v", wErr)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWriteError_UnknownErrorHidesCause(t *testing.T) {
	c, _ := newTestContext()
	cause := errors.New("connection refused")
	err := writeError(c, cause)

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error type = %T, want *echo.HTTPError", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want %d", httpErr.Code, http.StatusInternalServerError)
	}
	if httpErr.Message != "internal error" {
		t.Fatalf("message = %v, want generic text", httpErr.Message)
	}
	if !errors.Is(httpErr, cause) {
		t.Fatal("internal cause lost")
	}
}

func TestRepeatRequest_NormalizesKind(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.RepeatKind
	}{
		{"ALWAYS", domain.RepeatAlways},
		{" always ", domain.RepeatAlways},
		{"Count", domain.RepeatCount},
		{"off", domain.RepeatOff},
		{"", domain.RepeatKind("")},
	}
	for _, tc := range cases {
		got := repeatRequest{Kind: tc.raw}.policy().Kind
		if got != tc.want {
			t.Fatalf("kind %q normalized to %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNewServer_RegistersRoutes(t *testing.T) {
	e := NewServer(zerolog.Nop(), nil, nil, nil)

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+":"+r.Path] = true
	}
	expected := []string{
		"GET:/health",
		"POST:/api/v1/appointments",
		"GET:/api/v1/appointments",
		"GET:/api/v1/appointments/:id",
		"PUT:/api/v1/appointments/:id",
		"POST:/api/v1/appointments/:id/clients",
		"DELETE:/api/v1/appointments/:id/clients/:clientId",
		"POST:/api/v1/appointments/:id/clients/:clientId/absence",
		"GET:/api/v1/physiotherapists/:id/appointments",
		"GET:/api/v1/clients/:id/appointments",
		"GET:/api/v1/clients/:id/appointments/available",
		"POST:/api/v1/clients/:id/replan",
		"GET:/api/v1/clients/:clientId/appointments/:id/can-reschedule",
		"GET:/api/v1/clients/:id/can-reschedule",
		"POST:/api/v1/clients/:clientId/appointments/:id/cancel",
		"POST:/api/v1/clients/:clientId/appointments/:id/reschedule",
		"POST:/api/v1/policies",
		"GET:/api/v1/policies/:id",
		"POST:/api/v1/clients",
		"GET:/api/v1/clients",
		"GET:/api/v1/clients/:id",
		"GET:/api/v1/clients/:id/schedule",
		"POST:/api/v1/clients/:id/payments",
		"POST:/api/v1/physiotherapists",
		"GET:/api/v1/physiotherapists",
		"POST:/api/v1/business-rules",
		"GET:/api/v1/business-rules",
	}
	for _, path := range expected {
		if !registered[path] {
			t.Errorf("missing route %s", path)
		}
	}
}
