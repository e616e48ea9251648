// Package client talks to the app config HTTP API the way the web UI does:
// cookie session, CSRF header, and a password re-confirmation before writes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/omigeot/server/internal/platform/retry"
	"github.com/omigeot/server/internal/platform/version"
)

const (
	DefaultConfirmationMaxAge = 30 * time.Minute
	csrfHeader                = "X-CSRF-Token"
	confirmationRequiredMsg   = "password confirmation required"
)

var (
	ErrUnauthorized         = errors.New("not logged in")
	ErrConfirmationRequired = errors.New(confirmationRequiredMsg)
	ErrForbiddenKey         = errors.New("config key is protected")
	ErrNoPasswordPrompt     = errors.New("password confirmation needed but no prompt configured")
)

// PasswordPrompt supplies the admin password when a write needs confirmation.
type PasswordPrompt interface {
	Password(ctx context.Context) (string, error)
}

// PasswordPromptFunc adapts a function to PasswordPrompt.
type PasswordPromptFunc func(ctx context.Context) (string, error)

func (f PasswordPromptFunc) Password(ctx context.Context) (string, error) { return f(ctx) }

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client. Only BaseURL is required.
type Config struct {
	BaseURL            string
	HTTPClient         *http.Client
	Prompt             PasswordPrompt
	Clock              clockwork.Clock
	ConfirmationMaxAge time.Duration
	Retry              retry.Policy
	UserAgent          string
}

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	prompt    PasswordPrompt
	clock     clockwork.Clock
	maxAge    time.Duration
	retry     retry.Policy
	userAgent string

	mu          sync.Mutex
	csrfToken   string
	confirmedAt time.Time
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	c := &Client{
		baseURL:   base,
		http:      httpClient,
		prompt:    cfg.Prompt,
		clock:     cfg.Clock,
		maxAge:    cfg.ConfirmationMaxAge,
		retry:     cfg.Retry,
		userAgent: cfg.UserAgent,
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultConfirmationMaxAge
	}
	if c.retry.MaxAttempts < 1 {
		c.retry = retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			RateLimitBackoff: 5 * time.Second,
		}
	}
	if c.retry.Clock == nil {
		c.retry.Clock = c.clock
	}
	if c.userAgent == "" {
		c.userAgent = version.UserAgent("appconfig-client")
	}
	return c, nil
}

// Login opens an admin session. A fresh login counts as a password confirmation.
func (c *Client) Login(ctx context.Context, user, password string) error {
	form := url.Values{"user": {user}, "password": {password}}
	if err := c.send(ctx, http.MethodPost, "/login", form, nil); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.mu.Lock()
	c.confirmedAt = c.clock.Now()
	c.csrfToken = ""
	c.mu.Unlock()
	return nil
}

// ConfirmPassword re-enters the password for the current session.
func (c *Client) ConfirmPassword(ctx context.Context, password string) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	form := url.Values{"password": {password}}
	if err := c.send(ctx, http.MethodPost, "/login/confirm", form, nil); err != nil {
		return fmt.Errorf("password confirmation failed: %w", err)
	}

	c.mu.Lock()
	c.confirmedAt = c.clock.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	if err := c.send(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	c.mu.Lock()
	c.confirmedAt = time.Time{}
	c.csrfToken = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) GetValue(ctx context.Context, app, key, def string) (string, error) {
	var value string
	q := url.Values{"defaultValue": {def}}
	err := c.read(ctx, "/appconfig/"+escape(app)+"/"+escape(key)+"?"+q.Encode(), &value)
	return value, err
}

func (c *Client) GetApps(ctx context.Context) ([]string, error) {
	var apps []string
	err := c.read(ctx, "/appconfig", &apps)
	return apps, err
}

func (c *Client) GetKeys(ctx context.Context, app string) ([]string, error) {
	var keys []string
	err := c.read(ctx, "/appconfig/"+escape(app), &keys)
	return keys, err
}

func (c *Client) HasKey(ctx context.Context, app, key string) (bool, error) {
	var exists bool
	err := c.read(ctx, "/appconfig/"+escape(app)+"/"+escape(key)+"/exists", &exists)
	return exists, err
}

func (c *Client) SetValue(ctx context.Context, app, key, value string) error {
	return c.write(ctx, http.MethodPost, "/appconfig/"+escape(app)+"/"+escape(key), url.Values{"value": {value}}, nil)
}

func (c *Client) DeleteKey(ctx context.Context, app, key string) error {
	return c.write(ctx, http.MethodDelete, "/appconfig/"+escape(app)+"/"+escape(key), nil, nil)
}

func (c *Client) DeleteApp(ctx context.Context, app string) error {
	return c.write(ctx, http.MethodDelete, "/appconfig/"+escape(app), nil, nil)
}

// BumpCacheBuster invalidates every cached theming icon and returns the new value.
func (c *Client) BumpCacheBuster(ctx context.Context) (string, error) {
	var out struct {
		CacheBuster string `json:"cachebuster"`
	}
	if err := c.write(ctx, http.MethodPost, "/apps/theming/cachebuster", nil, &out); err != nil {
		return "", err
	}
	return out.CacheBuster, nil
}

// read performs an idempotent GET, retrying transport errors and 5xx answers.
func (c *Client) read(ctx context.Context, path string, out any) error {
	err := retry.DoVoid(ctx, c.retry, classify, func(ctx context.Context) error {
		return c.send(ctx, http.MethodGet, path, nil, out)
	})
	var perm *retry.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// write runs a mutating call behind the password-confirmation gate. A 403
// asking for confirmation is retried once after prompting.
func (c *Client) write(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := c.ensureCSRF(ctx); err != nil {
		return err
	}
	if c.confirmationStale() {
		if err := c.confirm(ctx); err != nil {
			return err
		}
	}

	err := c.send(ctx, method, path, form, out)
	if errors.Is(err, ErrConfirmationRequired) {
		if err := c.confirm(ctx); err != nil {
			return err
		}
		err = c.send(ctx, method, path, form, out)
	}
	return err
}

func (c *Client) confirmationStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmedAt.IsZero() || c.clock.Since(c.confirmedAt) > c.maxAge
}

func (c *Client) confirm(ctx context.Context) error {
	if c.prompt == nil {
		return ErrNoPasswordPrompt
	}
	password, err := c.prompt.Password(ctx)
	if err != nil {
		return fmt.Errorf("password prompt failed: %w", err)
	}
	return c.ConfirmPassword(ctx, password)
}

func (c *Client) ensureCSRF(ctx context.Context) error {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return nil
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodGet, "/csrftoken", nil, func(body []byte) error {
		return json.Unmarshal(body, &resp)
	}); err != nil {
		return fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	if resp.Token == "" {
		return errors.New("server returned an empty CSRF token")
	}

	c.mu.Lock()
	c.csrfToken = resp.Token
	c.mu.Unlock()
	return nil
}

// send performs one request and decodes the {"data": ...} envelope into out.
func (c *Client) send(ctx context.Context, method, path string, form url.Values, out any) error {
	return c.do(ctx, method, path, form, func(body []byte) error {
		if out == nil || len(body) == 0 {
			return nil
		}
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, decode func([]byte) error) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if method != http.MethodGet {
		c.mu.Lock()
		if c.csrfToken != "" {
			req.Header.Set(csrfHeader, c.csrfToken)
		}
		c.mu.Unlock()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, payload)
	}

	slog.DebugContext(ctx, "App config API call", "method", method, "path", path, "status", resp.StatusCode)
	return decode(payload)
}

func decodeError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
		Type  string `json:"type"`
		Data  struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	_ = json.Unmarshal(payload, &body)

	apiErr := &APIError{StatusCode: status, Message: body.Error, Type: body.Type}
	if apiErr.Message == "" {
		apiErr.Message = body.Data.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	case status == http.StatusForbidden && apiErr.Message == confirmationRequiredMsg:
		return fmt.Errorf("%w: %w", ErrConfirmationRequired, apiErr)
	case status == http.StatusForbidden && body.Data.Message != "":
		return fmt.Errorf("%w: %w", ErrForbiddenKey, apiErr)
	}
	return apiErr
}

func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return retry.Retry
		}
		return retry.Stop
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case apiErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
