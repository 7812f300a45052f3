package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/vk/tilegate/internal/correlation"
	"github.com/vk/tilegate/internal/ctxlog"
	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/translate"
)

// correlationMiddleware reuses the client's request id when present, echoes
// it back and puts it and the logger into the request context.
func (s *Server) correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlation.HeaderName)
		if id == "" {
			id = correlation.NewID()
		}
		c.Response().Header().Set(correlation.HeaderName, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		ctx = ctxlog.WithLogger(ctx, s.logger)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// allowAnyOrigin sets the cross-origin header before the handler runs so
// error responses on tile routes carry it too.
func allowAnyOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(translate.HeaderAllowOrigin, "*")
		return next(c)
	}
}

// ErrorHandlingMiddleware converts handler errors into structured JSON
// responses. echo's own HTTP errors (unknown route, bad method) are left to
// echo.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	logger := ctxlog.FromContext(ctx)

	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeClientClosed:
		logger.InfoContext(ctx, "Client closed request", attrs...)
	case apperrors.TypeBadRequest:
		logger.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		logger.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeAlreadyExists:
		logger.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeDispatchTimeout, apperrors.TypeUnavailable:
		logger.WarnContext(ctx, "Dispatch unavailable", attrs...)
	default:
		if err.Cause != nil && !errors.Is(err.Cause, context.Canceled) {
			attrs = append(attrs, "cause", err.Cause)
		}
		logger.ErrorContext(ctx, "Request failed", attrs...)
	}
}
