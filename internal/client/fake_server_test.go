package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeServer mimics the app config API closely enough to exercise the
// client's session, CSRF and confirmation handling.
type fakeServer struct {
	mu          sync.Mutex
	values      map[string]string
	loggedIn    bool
	confirmed   bool
	csrfToken   string
	failReads   atomic.Int32
	requests    []string
	userAgents  []string
	confirmHits atomic.Int32
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{values: make(map[string]string), csrfToken: "tok-123"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.userAgents = append(f.userAgents, r.UserAgent())

	if r.Method == http.MethodGet && f.failReads.Load() > 0 && strings.HasPrefix(r.URL.Path, "/appconfig") {
		f.failReads.Add(-1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try later", "type": "external"})
		return
	}

	switch {
	case r.URL.Path == "/csrftoken":
		writeJSON(w, http.StatusOK, map[string]string{"token": f.csrfToken})
		return
	case r.URL.Path == "/login":
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials", "type": "unauthorized"})
			return
		}
		f.loggedIn, f.confirmed = true, true
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"lastLogin": 1}})
		return
	}

	if !f.loggedIn {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required", "type": "unauthorized"})
		return
	}
	if r.Method != http.MethodGet && r.Header.Get("X-CSRF-Token") != f.csrfToken {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid csrf token", "type": "forbidden"})
		return
	}

	if r.URL.Path == "/login/confirm" {
		f.confirmHits.Add(1)
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "pw" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid password", "type": "forbidden"})
			return
		}
		f.confirmed = true
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"lastLogin": 2}})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/appconfig"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		writeJSON(w, http.StatusOK, map[string]any{"data": []string{"core", "files"}})
	case r.Method == http.MethodGet && len(parts) == 3:
		v, ok := f.values[parts[1]+"/"+parts[2]]
		if !ok {
			v = r.URL.Query().Get("defaultValue")
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": v})
	case r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "exists":
		_, ok := f.values[parts[1]+"/"+parts[2]]
		writeJSON(w, http.StatusOK, map[string]any{"data": ok})
	case r.Method == http.MethodPost && len(parts) == 3:
		if !f.confirmed {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "password confirmation required", "type": "forbidden"})
			return
		}
		if parts[1] == "core" && strings.HasPrefix(parts[2], "public_") {
			writeJSON(w, http.StatusForbidden, map[string]any{"data": map[string]string{"message": "Unexpected error!"}})
			return
		}
		_ = r.ParseForm()
		f.values[parts[1]+"/"+parts[2]] = r.PostForm.Get("value")
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
	case r.Method == http.MethodDelete && len(parts) == 3:
		delete(f.values, parts[1]+"/"+parts[2])
		writeJSON(w, http.StatusOK, map[string]any{"data": nil})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "type": "not_found"})
	}
}

// expireConfirmation simulates the server-side confirmation window running out.
func (f *fakeServer) expireConfirmation() {
	f.mu.Lock()
	f.confirmed = false
	f.mu.Unlock()
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
