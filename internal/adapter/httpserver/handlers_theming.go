package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omigeot/server/internal/domain"
	apperrors "github.com/omigeot/server/internal/platform/errors"
)

const iconCacheSeconds = 24 * 60 * 60

func (s *Server) registerThemingRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.GET("/apps/theming/img/:app/*", s.handleThemedIcon)
	s.echo.GET("/apps/theming/favicon", s.handleFavicon)
	s.echo.GET("/apps/theming/favicon/:app", s.handleFavicon)
	s.echo.GET("/apps/theming/icon", s.handleTouchIcon)
	s.echo.GET("/apps/theming/icon/:app", s.handleTouchIcon)

	s.echo.POST("/apps/theming/cachebuster", s.handleBumpCacheBuster,
		s.requireAuth, csrfMiddleware, s.requirePasswordConfirmation)
}

func (s *Server) handleThemedIcon(c echo.Context) error {
	app, err := pathParam(c, "app")
	if err != nil {
		return err
	}
	image, err := pathParam(c, "*")
	if err != nil {
		return err
	}

	icon, err := s.icons.ThemedIcon(c.Request().Context(), app, image)
	switch {
	case errors.Is(err, domain.ErrInvalidAppID):
		return apperrors.ValidationError("Invalid app id given").WithField("app", app)
	case errors.Is(err, domain.ErrAppImageNotFound):
		return apperrors.NotFoundError("image not found").WithField("app", app).WithField("image", image)
	case err != nil:
		return apperrors.InternalError("failed to serve themed icon", err).WithField("app", app).WithField("image", image)
	}

	return s.sendIcon(c, icon)
}

func (s *Server) handleFavicon(c echo.Context) error {
	return s.serveAppIcon(c, "favicon", s.icons.Favicon)
}

func (s *Server) handleTouchIcon(c echo.Context) error {
	return s.serveAppIcon(c, "touch icon", s.icons.TouchIcon)
}

func (s *Server) serveAppIcon(c echo.Context, kind string, load func(context.Context, string) (*domain.Icon, error)) error {
	app := domain.CoreApp
	if c.Param("app") != "" {
		var err error
		if app, err = pathParam(c, "app"); err != nil {
			return err
		}
	}

	icon, err := load(c.Request().Context(), app)
	switch {
	case errors.Is(err, domain.ErrIconReplacementDisabled):
		s.setCacheHeaders(c)
		return c.NoContent(http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidAppID):
		return apperrors.ValidationError("Invalid app id given").WithField("app", app)
	case errors.Is(err, domain.ErrAppImageNotFound):
		return apperrors.NotFoundError("app icon not found").WithField("app", app)
	case err != nil:
		return apperrors.InternalError("failed to serve "+kind, err).WithField("app", app)
	}

	return s.sendIcon(c, icon)
}

func (s *Server) handleBumpCacheBuster(c echo.Context) error {
	value, err := s.icons.BumpCacheBuster(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to bump cache buster", err)
	}
	return sendData(c, http.StatusOK, map[string]string{"cachebuster": value})
}

func (s *Server) sendIcon(c echo.Context, icon *domain.Icon) error {
	s.setCacheHeaders(c)
	if err := c.Blob(http.StatusOK, icon.ContentType, icon.Content); err != nil {
		return fmt.Errorf("failed to send icon: %w", err)
	}
	return nil
}

func (s *Server) setCacheHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, "max-age="+strconv.Itoa(iconCacheSeconds))
	h.Set("Expires", s.icons.Expires().UTC().Format(time.RFC1123Z))
	h.Set("Pragma", "cache")
}
