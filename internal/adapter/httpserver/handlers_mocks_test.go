package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/omigeot/server/internal/domain"
	"github.com/omigeot/server/internal/platform/config"
)

const (
	testAdminUser     = "admin"
	testAdminPassword = "s3cret-password"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockAppConfigService struct {
	getValueFn  func(ctx context.Context, app, key, def string) (string, error)
	setValueFn  func(ctx context.Context, app, key, value string) error
	getAppsFn   func(ctx context.Context) ([]string, error)
	getKeysFn   func(ctx context.Context, app string) ([]string, error)
	hasKeyFn    func(ctx context.Context, app, key string) (bool, error)
	deleteKeyFn func(ctx context.Context, app, key string) error
	deleteAppFn func(ctx context.Context, app string) error
}

func (m *mockAppConfigService) GetValue(ctx context.Context, app, key, def string) (string, error) {
	if m.getValueFn != nil {
		return m.getValueFn(ctx, app, key, def)
	}
	return def, nil
}

func (m *mockAppConfigService) SetValue(ctx context.Context, app, key, value string) error {
	if m.setValueFn != nil {
		return m.setValueFn(ctx, app, key, value)
	}
	return nil
}

func (m *mockAppConfigService) GetApps(ctx context.Context) ([]string, error) {
	if m.getAppsFn != nil {
		return m.getAppsFn(ctx)
	}
	return []string{}, nil
}

func (m *mockAppConfigService) GetKeys(ctx context.Context, app string) ([]string, error) {
	if m.getKeysFn != nil {
		return m.getKeysFn(ctx, app)
	}
	return []string{}, nil
}

func (m *mockAppConfigService) HasKey(ctx context.Context, app, key string) (bool, error) {
	if m.hasKeyFn != nil {
		return m.hasKeyFn(ctx, app, key)
	}
	return false, nil
}

func (m *mockAppConfigService) DeleteKey(ctx context.Context, app, key string) error {
	if m.deleteKeyFn != nil {
		return m.deleteKeyFn(ctx, app, key)
	}
	return nil
}

func (m *mockAppConfigService) DeleteApp(ctx context.Context, app string) error {
	if m.deleteAppFn != nil {
		return m.deleteAppFn(ctx, app)
	}
	return nil
}

type mockIconService struct {
	themedIconFn      func(ctx context.Context, app, image string) (*domain.Icon, error)
	faviconFn         func(ctx context.Context, app string) (*domain.Icon, error)
	touchIconFn       func(ctx context.Context, app string) (*domain.Icon, error)
	bumpCacheBusterFn func(ctx context.Context) (string, error)
}

func (m *mockIconService) ThemedIcon(ctx context.Context, app, image string) (*domain.Icon, error) {
	if m.themedIconFn != nil {
		return m.themedIconFn(ctx, app, image)
	}
	return nil, errors.New("not implemented")
}

func (m *mockIconService) Favicon(ctx context.Context, app string) (*domain.Icon, error) {
	if m.faviconFn != nil {
		return m.faviconFn(ctx, app)
	}
	return nil, errors.New("not implemented")
}

func (m *mockIconService) TouchIcon(ctx context.Context, app string) (*domain.Icon, error) {
	if m.touchIconFn != nil {
		return m.touchIconFn(ctx, app)
	}
	return nil, errors.New("not implemented")
}

func (m *mockIconService) Expires() time.Time {
	return testNow.Add(24 * time.Hour)
}

func (m *mockIconService) BumpCacheBuster(ctx context.Context) (string, error) {
	if m.bumpCacheBusterFn != nil {
		return m.bumpCacheBusterFn(ctx)
	}
	return "1", nil
}

// --- Test helpers ---

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	return &config.Config{
		AppEnv:                     "test",
		Port:                       "0",
		SessionSecret:              "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:              time.Hour,
		AdminUser:                  testAdminUser,
		AdminPasswordHash:          string(hash),
		PasswordConfirmationMaxAge: 30 * time.Minute,
		LoginRateLimitPerSecond:    100,
		LoginRateLimitBurst:        100,
	}
}

func newTestServer(t *testing.T, appConfig domain.AppConfigService, icons domain.IconService, opts ...func(*config.Config)) *Server {
	t.Helper()
	return newTestServerWithDeps(t, Deps{AppConfig: appConfig, Icons: icons}, opts...)
}

func newTestServerWithDeps(t *testing.T, deps Deps, opts ...func(*config.Config)) *Server {
	t.Helper()

	cfg := testConfig(t)
	for _, opt := range opts {
		opt(cfg)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewFakeClockAt(testNow)
	}
	return NewServer(cfg, deps)
}

func fakeClock(t *testing.T, srv *Server) *clockwork.FakeClock {
	t.Helper()
	clock, ok := srv.clock.(*clockwork.FakeClock)
	require.True(t, ok, "server must run on a fake clock")
	return clock
}

// browser carries cookies and the CSRF token across requests like a web client would.
type browser struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
	csrf    string
}

func newBrowser(t *testing.T, srv *Server) *browser {
	return &browser{t: t, srv: srv, cookies: make(map[string]*http.Cookie)}
}

// loggedIn returns a browser with an admin session and a CSRF token.
func loggedIn(t *testing.T, srv *Server) *browser {
	t.Helper()
	b := newBrowser(t, srv)
	rec := b.postForm("/login", url.Values{"user": {testAdminUser}, "password": {testAdminPassword}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	b.fetchCSRF()
	return b
}

func (b *browser) fetchCSRF() {
	b.t.Helper()
	rec := b.do(http.MethodGet, "/csrftoken", nil, "")
	require.Equal(b.t, http.StatusOK, rec.Code)
	cookie, ok := b.cookies[csrfCookieName]
	require.True(b.t, ok, "csrf cookie must be set")
	b.csrf = cookie.Value
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil, "")
}

func (b *browser) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (b *browser) delete(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodDelete, target, nil, "")
}

func (b *browser) do(method, target string, body *strings.Reader, contentType string) *httptest.ResponseRecorder {
	b.t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if b.csrf != "" {
		req.Header.Set("X-CSRF-Token", b.csrf)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.srv.echo.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}
