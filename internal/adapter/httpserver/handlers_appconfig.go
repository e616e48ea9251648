package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/omigeot/server/internal/domain"
	apperrors "github.com/omigeot/server/internal/platform/errors"
)

type setValueRequest struct {
	Value string `json:"value" form:"value"`
}

// dataResponse is the envelope every config endpoint answers with.
type dataResponse struct {
	Data any `json:"data"`
}

func (s *Server) registerAppConfigRoutes(csrfMiddleware echo.MiddlewareFunc) {
	g := s.echo.Group("/appconfig", s.requireAuth, csrfMiddleware)

	g.GET("", s.handleGetApps)
	g.GET("/:app", s.handleGetKeys)
	g.GET("/:app/:key", s.handleGetValue)
	g.GET("/:app/:key/exists", s.handleHasKey)

	g.POST("/:app/:key", s.handleSetValue, s.requirePasswordConfirmation)
	g.DELETE("/:app/:key", s.handleDeleteKey, s.requirePasswordConfirmation)
	g.DELETE("/:app", s.handleDeleteApp, s.requirePasswordConfirmation)
}

func (s *Server) handleGetApps(c echo.Context) error {
	apps, err := s.appConfig.GetApps(c.Request().Context())
	if err != nil {
		return configError(err, "", "")
	}
	return sendData(c, http.StatusOK, apps)
}

func (s *Server) handleGetKeys(c echo.Context) error {
	app, err := pathParam(c, "app")
	if err != nil {
		return err
	}

	keys, err := s.appConfig.GetKeys(c.Request().Context(), app)
	if err != nil {
		return configError(err, app, "")
	}
	return sendData(c, http.StatusOK, keys)
}

func (s *Server) handleGetValue(c echo.Context) error {
	app, key, err := appAndKey(c)
	if err != nil {
		return err
	}

	value, err := s.appConfig.GetValue(c.Request().Context(), app, key, c.QueryParam("defaultValue"))
	if err != nil {
		return configError(err, app, key)
	}
	return sendData(c, http.StatusOK, value)
}

func (s *Server) handleHasKey(c echo.Context) error {
	app, key, err := appAndKey(c)
	if err != nil {
		return err
	}

	exists, err := s.appConfig.HasKey(c.Request().Context(), app, key)
	if err != nil {
		return configError(err, app, key)
	}
	return sendData(c, http.StatusOK, exists)
}

func (s *Server) handleSetValue(c echo.Context) error {
	app, key, err := appAndKey(c)
	if err != nil {
		return err
	}

	var req setValueRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithField("app", app).WithField("key", key)
	}

	err = s.appConfig.SetValue(c.Request().Context(), app, key, req.Value)
	if errors.Is(err, domain.ErrForbiddenKey) {
		if s.errorMetrics != nil {
			s.errorMetrics.ErrorsTotal.WithLabelValues(string(apperrors.TypeForbidden)).Inc()
		}
		return sendData(c, http.StatusForbidden, map[string]string{"message": "Unexpected error!"})
	}
	if err != nil {
		return configError(err, app, key)
	}
	return sendData(c, http.StatusOK, nil)
}

func (s *Server) handleDeleteKey(c echo.Context) error {
	app, key, err := appAndKey(c)
	if err != nil {
		return err
	}

	if err := s.appConfig.DeleteKey(c.Request().Context(), app, key); err != nil {
		return configError(err, app, key)
	}
	return sendData(c, http.StatusOK, nil)
}

func (s *Server) handleDeleteApp(c echo.Context) error {
	app, err := pathParam(c, "app")
	if err != nil {
		return err
	}

	if err := s.appConfig.DeleteApp(c.Request().Context(), app); err != nil {
		return configError(err, app, "")
	}
	return sendData(c, http.StatusOK, nil)
}

func sendData(c echo.Context, status int, data any) error {
	if err := c.JSON(status, dataResponse{Data: data}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// configError maps service errors onto structured HTTP errors.
func configError(err error, app, key string) error {
	var e *apperrors.Error
	switch {
	case errors.Is(err, domain.ErrInvalidAppID):
		e = apperrors.ValidationError("Invalid app id given")
	default:
		e = apperrors.InternalError("config store failure", err)
	}
	if app != "" {
		e = e.WithField("app", app)
	}
	if key != "" {
		e = e.WithField("key", key)
	}
	return e
}

// pathParam returns the unescaped value of a path parameter. Echo matches
// on URL.RawPath when it is set and on the already decoded URL.Path
// otherwise, so only the former needs unescaping.
func pathParam(c echo.Context, name string) (string, error) {
	raw := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return raw, nil
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", apperrors.ValidationError("malformed path parameter").WithField("param", name)
	}
	return value, nil
}

func appAndKey(c echo.Context) (string, string, error) {
	app, err := pathParam(c, "app")
	if err != nil {
		return "", "", err
	}
	key, err := pathParam(c, "key")
	if err != nil {
		return "", "", err
	}
	return app, key, nil
}
