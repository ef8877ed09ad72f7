package server

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/eyemath/internal/version"
	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/orchestrator"
	"github.com/hrygo/eyemath/solver/render"
)

// SolveRequest is the JSON body of POST /api/v1/solve.
type SolveRequest struct {
	Expression     string  `json:"expression"`
	ShowSteps      bool    `json:"show_steps"`
	RenderResults  bool    `json:"render_results"`
	Operation      string  `json:"operation,omitempty"`
	Variable       string  `json:"variable,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// RenderRequest is the JSON body of POST /api/v1/render.
type RenderRequest struct {
	Expression string `json:"expression"`
}

// RenderResponse is the reply of POST /api/v1/render.
type RenderResponse struct {
	ImageURL string `json:"image_url"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the reply of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// MaxTimeoutSeconds bounds timeout_seconds so the converted duration cannot overflow.
const MaxTimeoutSeconds = 3600

var errInvalidRequest = errors.New("invalid request")

// toOrchestratorRequest validates in and maps it to an orchestrator request.
func (in SolveRequest) toOrchestratorRequest() (orchestrator.SolveRequest, error) {
	if strings.TrimSpace(in.Expression) == "" {
		return orchestrator.SolveRequest{}, errors.Wrap(errInvalidRequest, "expression is required")
	}
	op, err := classify.ParseOperation(in.Operation)
	if err != nil {
		return orchestrator.SolveRequest{}, err
	}
	if in.TimeoutSeconds < 0 {
		return orchestrator.SolveRequest{}, errors.Wrap(errInvalidRequest, "timeout_seconds must not be negative")
	}
	if in.TimeoutSeconds > MaxTimeoutSeconds || math.IsNaN(in.TimeoutSeconds) {
		return orchestrator.SolveRequest{}, errors.Wrapf(errInvalidRequest, "timeout_seconds must not exceed %d", MaxTimeoutSeconds)
	}
	return orchestrator.SolveRequest{
		Expression:    in.Expression,
		ShowSteps:     in.ShowSteps,
		RenderResults: in.RenderResults,
		Operation:     op,
		Variable:      strings.TrimSpace(in.Variable),
		Timeout:       time.Duration(in.TimeoutSeconds * float64(time.Second)),
	}, nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/healthz"
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Warn("HTTP request", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("HTTP request", attrs...)
			return nil
		},
	}))

	corsHandler := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
	})

	api := e.Group("/api/v1", corsHandler, middleware.BodyLimit(s.cfg.BodyLimit))
	if s.cfg.RateLimit > 0 {
		api.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.cfg.RateLimit),
				Burst:     s.cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			},
		}))
	}
	api.POST("/solve", s.handleSolve)
	api.POST("/render", s.handleRender)

	e.GET("/healthz", s.handleHealth)
	e.GET("/version", s.handleVersion)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	return e
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func (s *Server) handleSolve(c echo.Context) error {
	var in SolveRequest
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
	}
	req, err := in.toOrchestratorRequest()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	req.Credential = c.Request().Header.Get(echo.HeaderAuthorization)
	req.RequestID = requestID(c)

	return c.JSON(http.StatusOK, s.orch.Solve(c.Request().Context(), req))
}

func (s *Server) handleRender(c echo.Context) error {
	var in RenderRequest
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
	}
	if strings.TrimSpace(in.Expression) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "expression is required"})
	}

	url, err := s.orch.Render(c.Request().Context(), in.Expression, c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		s.logger.Warn("render request failed", "request_id", requestID(c), "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, render.ErrRender) {
			code = http.StatusBadGateway
		}
		return c.JSON(code, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RenderResponse{ImageURL: url})
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.refreshHealth(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Current(s.cfg.Mode))
}
