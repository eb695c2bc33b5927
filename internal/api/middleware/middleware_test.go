package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("test-api-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}

	t.Run("allows request with valid key", func(t *testing.T) {
		h := APIKeyAuth(zap.NewNop(), string(hash))(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		req.Header.Set(APIKeyHeader, "test-api-key")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})

	t.Run("rejects request without key", func(t *testing.T) {
		h := APIKeyAuth(zap.NewNop(), string(hash))(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})

	t.Run("rejects request with wrong key", func(t *testing.T) {
		h := APIKeyAuth(zap.NewNop(), string(hash))(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		req.Header.Set(APIKeyHeader, "wrong-key")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})

	t.Run("empty hash disables auth", func(t *testing.T) {
		h := APIKeyAuth(zap.NewNop(), "")(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin gets specific header and credentials", func(t *testing.T) {
		h := CORS(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("expected specific origin, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("expected credentials header, got %q", got)
		}
	})

	t.Run("unknown origin gets no allow-origin header", func(t *testing.T) {
		h := CORS(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow-origin header, got %q", got)
		}
	})

	t.Run("preflight request is short-circuited", func(t *testing.T) {
		called := false
		h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/platforms", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, w.Code)
		}
		if called {
			t.Error("preflight should not reach the next handler")
		}
	})
}

func TestLogging(t *testing.T) {
	t.Run("assigns request id when missing", func(t *testing.T) {
		h := Logging(zap.NewNop())(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Header().Get(RequestIDHeader) == "" {
			t.Error("expected generated request id in response header")
		}
	})

	t.Run("preserves incoming request id", func(t *testing.T) {
		h := Logging(zap.NewNop())(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "req-42" {
			t.Errorf("expected request id req-42, got %q", got)
		}
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic with 500", func(t *testing.T) {
		h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		h.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
