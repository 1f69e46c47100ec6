package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"physiofit/backend/internal/service/records"
	"physiofit/backend/internal/service/rules"
	"physiofit/backend/internal/service/scheduling"
	"physiofit/backend/internal/store"
)

// NewServer wires the API onto a fresh echo instance.
func NewServer(logger zerolog.Logger, scheduler *scheduling.Service, ruleEngine *rules.Service, registry *records.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1")
	NewSchedulingHandler(scheduler).RegisterRoutes(api)
	NewRulesHandler(ruleEngine).RegisterRoutes(api)
	NewRecordsHandler(registry).RegisterRoutes(api)

	return e
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus: true,
		LogMethod: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			evt := logger.Info()
			if v.Status >= http.StatusInternalServerError {
				evt = logger.Error().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("request")
			return nil
		},
	})
}

// writeError translates service and store errors into HTTP responses. Input
// mistakes come back as 400, missing records as 404 and booking collisions
// as 409; anything else is a plain 500.
func writeError(c echo.Context, err error) error {
	var schedValidation *scheduling.ValidationError
	var rulesValidation *rules.ValidationError
	var recordsValidation *records.ValidationError
	switch {
	case errors.As(err, &schedValidation),
		errors.As(err, &rulesValidation),
		errors.As(err, &recordsValidation):
		return c.JSON(http.StatusBadRequest, errorBody(err))
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody(err))
	case errors.Is(err, store.ErrAlreadyBooked),
		errors.Is(err, store.ErrAlreadyAssociated),
		errors.Is(err, store.ErrGroupFull):
		return c.JSON(http.StatusConflict, errorBody(err))
	default:
		// Surfaced through echo's error handler so the request logger sees
		// the underlying cause.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
