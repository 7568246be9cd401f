package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/observability/metrics"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

// Server is the HTTP front end: API routes, /metrics and /healthz.
type Server struct {
	echo       *echo.Echo
	listen     string
	controller *Controller
	log        logger.Logger
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Listen     string
	Controller ControllerOptions
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// NewServer builds the router. It does not start listening.
func NewServer(opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(requestLogger(log.Module("http")))

	e.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	if opts.Controller.Logger == nil {
		opts.Controller.Logger = log
	}
	s := &Server{
		echo:   e,
		listen: opts.Listen,
		log:    log.Module("api"),
	}
	s.controller = NewController(e.Group(BasePath), opts.Controller)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens until Shutdown is called. It returns nil on a clean stop.
func (s *Server) Start() error {
	s.log.Info("http server listening", logger.String("address", s.listen))
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("operation", "listen").
			Context("address", s.listen).
			Build()
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}
			log.Debug("request",
				logger.String("method", ctx.Request().Method),
				logger.String("path", ctx.Path()),
				logger.Int("status", ctx.Response().Status),
				logger.Duration("latency", time.Since(start)))
			return nil
		}
	}
}
