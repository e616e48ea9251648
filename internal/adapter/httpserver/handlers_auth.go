package httpserver

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/omigeot/server/internal/platform/errors"
)

type loginRequest struct {
	User     string `json:"user" form:"user"`
	Password string `json:"password" form:"password"`
}

type confirmRequest struct {
	Password string `json:"password" form:"password"`
}

func (s *Server) registerAuthRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/csrftoken", s.handleCSRFToken, csrfMiddleware)
	s.echo.POST("/login", s.handleLogin, rateLimiter)
	s.echo.POST("/login/confirm", s.handleConfirmPassword, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.POST("/logout", s.handleLogout, s.requireAuth, csrfMiddleware)
}

// requireAuth rejects requests without an admin session.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("authentication required")
		}

		user, ok := session.Values[sessionKeyUser].(string)
		if !ok || user == "" {
			return apperrors.UnauthorizedError("authentication required")
		}

		c.Set(contextKeyUser, user)
		return next(c)
	}
}

// requirePasswordConfirmation rejects writes when the admin has not
// re-entered the password recently.
func (s *Server) requirePasswordConfirmation(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.ForbiddenError(passwordConfirmMessage)
		}

		confirmedAt, ok := session.Values[sessionKeyConfirmedAt].(int64)
		if !ok {
			return apperrors.ForbiddenError(passwordConfirmMessage)
		}

		if s.clock.Since(time.Unix(confirmedAt, 0)) > s.config.PasswordConfirmationMaxAge {
			return apperrors.ForbiddenError(passwordConfirmMessage).
				WithField("confirmed_at", confirmedAt)
		}

		return next(c)
	}
}

func (s *Server) handleCSRFToken(c echo.Context) error {
	token, _ := c.Get(csrfContextKey).(string)
	if err := c.JSON(http.StatusOK, map[string]string{"token": token}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid login request")
	}

	if !s.checkCredentials(req.User, req.Password) {
		slog.WarnContext(ctx, "Failed admin login", "user", req.User, "ip", c.RealIP())
		return apperrors.UnauthorizedError("invalid credentials")
	}

	// Drop any pre-login session before issuing the authenticated one.
	if old, err := s.sessionStore.Get(c.Request(), sessionName); err == nil && !old.IsNew {
		old.Options.MaxAge = -1
		if err := old.Save(c.Request(), c.Response().Writer); err != nil {
			return apperrors.InternalError("failed to invalidate old session", err)
		}
	}

	session, err := s.sessionStore.New(c.Request(), sessionName)
	if err != nil && session == nil {
		return apperrors.InternalError("failed to create new session", err)
	}

	now := s.clock.Now()
	session.Values[sessionKeyUser] = req.User
	session.Values[sessionKeyConfirmedAt] = now.Unix()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	slog.InfoContext(ctx, "Admin logged in", "user", req.User)

	if err := c.JSON(http.StatusOK, map[string]any{"data": map[string]any{"lastLogin": now.Unix()}}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleConfirmPassword(c echo.Context) error {
	ctx := c.Request().Context()
	user, _ := c.Get(contextKeyUser).(string)

	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid confirmation request")
	}

	if !s.checkCredentials(user, req.Password) {
		slog.WarnContext(ctx, "Failed password confirmation", "user", user, "ip", c.RealIP())
		return apperrors.ForbiddenError("invalid password")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.InternalError("failed to load session", err)
	}

	now := s.clock.Now()
	session.Values[sessionKeyConfirmedAt] = now.Unix()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"data": map[string]any{"lastLogin": now.Unix()}}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	user, _ := c.Get(contextKeyUser).(string)

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get session during logout", "error", err)
		session = sessions.NewSession(s.sessionStore, sessionName)
		session.Options = &sessions.Options{Path: "/"}
	}
	session.Options.MaxAge = -1

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	slog.InfoContext(ctx, "Admin logged out", "user", user)

	return c.NoContent(http.StatusNoContent)
}

// checkCredentials runs bcrypt even when the user name does not match.
func (s *Server) checkCredentials(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.config.AdminUser)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(password)) == nil
	return userOK && passOK
}
