package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/hclconf"
	"github.com/vk/tilegate/internal/layer"
)

// maxLayerBody caps layer definition request bodies.
const maxLayerBody = 1 << 20

type sessionResponse struct {
	Session string                  `json:"session"`
	Layers  map[string]layer.Config `json:"layers"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.sessions.Create(id); err != nil {
		return err
	}
	ctx := c.Request().Context()
	s.logger.InfoContext(ctx, "Session created.", "session", id)
	return c.JSON(http.StatusCreated, map[string]string{"session": id})
}

func (s *Server) handleGetSession(c echo.Context) error {
	cfg, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{Session: cfg.ID(), Layers: nonNil(cfg.Snapshot())})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.sessions.Delete(id); err != nil {
		return err
	}
	s.logger.InfoContext(c.Request().Context(), "Session deleted.", "session", id)
	return c.JSON(http.StatusOK, map[string]string{"session": id})
}

// handlePutLayer creates or replaces a layer. The body is JSON unless the
// request says application/hcl.
func (s *Server) handlePutLayer(c echo.Context) error {
	cfg, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}

	name := c.Param("name")
	def, err := s.decodeLayer(c, name)
	if err != nil {
		return err
	}
	if s.validator != nil {
		if err := s.validator.Validate(def); err != nil {
			return err
		}
	}

	status := http.StatusCreated
	if cfg.SetLayer(name, def) {
		status = http.StatusOK
	}
	s.logger.InfoContext(c.Request().Context(), "Layer stored.",
		"session", cfg.ID(), "layer", name, "provider", def.ProviderName(), "replaced", status == http.StatusOK)
	return c.JSON(status, def)
}

func (s *Server) handleGetLayer(c echo.Context) error {
	cfg, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	l, err := cfg.GetLayer(c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) handleDeleteLayer(c echo.Context) error {
	cfg, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	name := c.Param("name")
	if err := cfg.RemoveLayer(name); err != nil {
		return err
	}
	s.logger.InfoContext(c.Request().Context(), "Layer removed.", "session", cfg.ID(), "layer", name)
	return c.JSON(http.StatusOK, map[string]string{"session": cfg.ID(), "layer": name})
}

func (s *Server) decodeLayer(c echo.Context, name string) (layer.Config, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxLayerBody))
	if err != nil {
		return layer.Config{}, apperrors.BadRequest("failed to read layer body: %v", err)
	}

	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	switch mediaType {
	case "application/hcl", "text/hcl":
		return hclconf.ParseLayer(name, body)
	default:
		var def layer.Definition
		if err := json.Unmarshal(body, &def); err != nil {
			return layer.Config{}, apperrors.BadRequest("invalid layer JSON: %v", err)
		}
		return def.Build(name)
	}
}

func nonNil(m map[string]layer.Config) map[string]layer.Config {
	if m == nil {
		return map[string]layer.Config{}
	}
	return m
}
