package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vk/tilegate/internal/tile"
	"github.com/vk/tilegate/internal/translate"
)

// handleTile serves /session/:id/layer/:name/:z/:x/:y.ext. The session and
// layer are resolved before anything is dispatched, so unknown names never
// reach a worker.
func (s *Server) handleTile(c echo.Context) error {
	cfg, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	l, err := cfg.GetLayer(c.Param("name"))
	if err != nil {
		return err
	}

	y, ext, err := tile.SplitExtension(c.Param("y"))
	if err != nil {
		return err
	}
	coord, err := tile.ParseCoordinate(c.Param("z"), c.Param("x"), y)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	future, err := s.dispatcher.Submit(ctx, s.renderer, l, coord, ext)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	result, err := future.Await(waitCtx)
	if err != nil {
		return err
	}

	resp := translate.Response(result, l, s.clock.Now())
	header := c.Response().Header()
	for k, v := range resp.Header {
		header[k] = v
	}
	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = tile.ContentType(ext)
	}
	if resp.Body == nil {
		return c.NoContent(resp.StatusCode)
	}
	return c.Blob(resp.StatusCode, contentType, resp.Body)
}

// handleDebugSessions dumps every session and its layers.
func (s *Server) handleDebugSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleDebugDispatcher(c echo.Context) error {
	return c.JSON(http.StatusOK, s.dispatcher.Stats())
}
