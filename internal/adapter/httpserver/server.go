package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/omigeot/server/internal/adapter/metrics"
	"github.com/omigeot/server/internal/domain"
	"github.com/omigeot/server/internal/platform/config"
)

// Deps are the collaborators the HTTP layer serves. Metrics fields and
// Clock are optional.
type Deps struct {
	AppConfig      domain.AppConfigService
	Icons          domain.IconService
	HealthChecks   []HealthCheck
	HTTPMetrics    *metrics.HTTPMetrics
	ErrorMetrics   *metrics.ErrorMetrics
	MetricsHandler http.Handler
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	appConfig domain.AppConfigService
	icons     domain.IconService

	sessionStore   *sessions.CookieStore
	clock          clockwork.Clock
	healthChecks   []HealthCheck
	httpMetrics    *metrics.HTTPMetrics
	errorMetrics   *metrics.ErrorMetrics
	metricsHandler http.Handler
	startTime      time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		appConfig:      deps.AppConfig,
		icons:          deps.Icons,
		sessionStore:   setupSessionStore(cfg),
		clock:          clock,
		healthChecks:   deps.HealthChecks,
		httpMetrics:    deps.HTTPMetrics,
		errorMetrics:   deps.ErrorMetrics,
		metricsHandler: deps.MetricsHandler,
		startTime:      clock.Now(),
	}

	e.HTTPErrorHandler = srv.httpErrorHandler
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName            = "appconfig-session"
	sessionKeyUser         = "user"
	sessionKeyConfirmedAt  = "confirmed_at"
	csrfCookieName         = "csrf_token"
	csrfContextKey         = "csrf"
	contextKeyUser         = "user"
	passwordConfirmMessage = "password confirmation required"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}

// Handler exposes the router, mainly for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
