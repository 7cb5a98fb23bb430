package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	auth, err := NewAuthService(testSecret, "admin", "hunter2", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(&Handlers{
		Auth:   auth,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestLoginEndpoint(t *testing.T) {
	router := testRouter(t)

	body := strings.NewReader(`{"username":"admin","password":"hunter2"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/login", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("malformed login response: %v", err)
	}
	if resp.Token == "" {
		t.Error("empty token")
	}
}

func TestLoginRejectsBadPayloads(t *testing.T) {
	router := testRouter(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad credentials", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"malformed json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{"/api/v1/batches", "/api/v1/detect", "/api/v1/rotate"} {
		t.Run(path, func(t *testing.T) {
			method := http.MethodPost
			if path == "/api/v1/batches" {
				method = http.MethodGet
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}

			rec = httptest.NewRecorder()
			req := httptest.NewRequest(method, path, nil)
			req.Header.Set("Authorization", "Bearer bogus")
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("bogus token: status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestBatchesWithoutHistoryStore(t *testing.T) {
	router := testRouter(t)

	login := httptest.NewRecorder()
	router.ServeHTTP(login, httptest.NewRequest(http.MethodPost, "/api/v1/login",
		strings.NewReader(`{"username":"admin","password":"hunter2"}`)))

	var resp LoginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
