package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vk/tilegate/internal/ctxlog"
	"github.com/vk/tilegate/internal/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())

	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerDebugRoutes()
}

func (s *Server) registerSessionRoutes() {
	s.echo.POST("/session/:id", s.handleCreateSession)
	s.echo.GET("/session/:id", s.handleGetSession)
	s.echo.DELETE("/session/:id", s.handleDeleteSession)

	s.echo.POST("/session/:id/layer/:name", s.handlePutLayer)
	s.echo.GET("/session/:id/layer/:name", s.handleGetLayer)
	s.echo.DELETE("/session/:id/layer/:name", s.handleDeleteLayer)

	s.echo.GET("/session/:id/layer/:name/:z/:x/:y", s.handleTile, allowAnyOrigin)
}

func (s *Server) registerDebugRoutes() {
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metrics)))
	}
	s.echo.GET("/debug/sessions", s.handleDebugSessions)
	s.echo.GET("/debug/dispatcher", s.handleDebugDispatcher)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			ctx := c.Request().Context()
			ctxlog.FromContext(ctx).InfoContext(ctx, "Request", attrs...)
			return nil
		},
	})
}
