package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"tradebridge/internal/manager"
	"tradebridge/internal/models"
)

// ============ PlatformHandler Tests ============

func TestPlatformHandler_DetectForm(t *testing.T) {
	t.Run("returns detected form", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{"platform_name":"TradeLocker","login_url":"https://tl.example/login"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/detect", body)
		w := httptest.NewRecorder()

		handler.DetectForm(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var form models.DetectedForm
		if err := json.NewDecoder(w.Body).Decode(&form); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(form.LoginFields) != 2 {
			t.Errorf("expected 2 login fields, got %d", len(form.LoginFields))
		}
		if form.SubmitButton != `button[type="submit"]` {
			t.Errorf("unexpected submit button selector: %q", form.SubmitButton)
		}
	})

	t.Run("rejects empty platform name", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{"platform_name":"","login_url":"https://tl.example/login"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/detect", body)
		w := httptest.NewRecorder()

		handler.DetectForm(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects non-http login url", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{"platform_name":"Broker","login_url":"ftp://tl.example/login"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/detect", body)
		w := httptest.NewRecorder()

		handler.DetectForm(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{not json`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/detect", body)
		w := httptest.NewRecorder()

		handler.DetectForm(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestPlatformHandler_SavePlatform(t *testing.T) {
	t.Run("saves credentials and returns platform id", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{
			"platform_name": "TradeLocker",
			"login_url": "https://tl.example/login",
			"username": "trader",
			"password": "secret123"
		}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms", body)
		w := httptest.NewRecorder()

		handler.SavePlatform(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}

		var response SavePlatformResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.PlatformID == "" {
			t.Error("expected non-empty platform_id")
		}
	})

	t.Run("rejects missing username", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{
			"platform_name": "TradeLocker",
			"login_url": "https://tl.example/login",
			"password": "secret123"
		}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms", body)
		w := httptest.NewRecorder()

		handler.SavePlatform(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects missing password", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		body := bytes.NewBufferString(`{
			"platform_name": "TradeLocker",
			"login_url": "https://tl.example/login",
			"username": "trader"
		}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms", body)
		w := httptest.NewRecorder()

		handler.SavePlatform(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 500 on manager error", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		mockMgr.SetError("save", ErrMockInternal)

		body := bytes.NewBufferString(`{
			"platform_name": "TradeLocker",
			"login_url": "https://tl.example/login",
			"username": "trader",
			"password": "secret123"
		}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms", body)
		w := httptest.NewRecorder()

		handler.SavePlatform(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestPlatformHandler_GetPlatforms(t *testing.T) {
	t.Run("returns saved platforms", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		mockMgr.AddTestPlatform("tradelocker")
		mockMgr.AddTestPlatform("quotex")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		handler.GetPlatforms(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var platforms []*models.PlatformInfo
		if err := json.NewDecoder(w.Body).Decode(&platforms); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(platforms) != 2 {
			t.Errorf("expected 2 platforms, got %d", len(platforms))
		}
	})

	t.Run("returns 500 on manager error", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		mockMgr.SetError("list", ErrMockInternal)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		handler.GetPlatforms(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestPlatformHandler_GetPlatform(t *testing.T) {
	t.Run("returns platform by id", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		id := mockMgr.AddTestPlatform("tradelocker")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms/"+id, nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		w := httptest.NewRecorder()

		handler.GetPlatform(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var info models.PlatformInfo
		if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if info.PlatformID != id {
			t.Errorf("expected platform id %q, got %q", id, info.PlatformID)
		}
	})

	t.Run("returns 404 for unknown platform", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms/missing", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "missing"})
		w := httptest.NewRecorder()

		handler.GetPlatform(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestPlatformHandler_DeletePlatform(t *testing.T) {
	t.Run("deletes existing platform", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		id := mockMgr.AddTestPlatform("tradelocker")

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/platforms/"+id, nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		w := httptest.NewRecorder()

		handler.DeletePlatform(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		// Повторное удаление должно вернуть 404
		req = httptest.NewRequest(http.MethodDelete, "/api/v1/platforms/"+id, nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		w = httptest.NewRecorder()

		handler.DeletePlatform(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d on second delete, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestPlatformHandler_ConnectPlatform(t *testing.T) {
	t.Run("connects existing platform", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		id := mockMgr.AddTestPlatform("tradelocker")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/"+id+"/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		w := httptest.NewRecorder()

		handler.ConnectPlatform(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response SuccessResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Message == "" {
			t.Error("expected non-empty message")
		}
	})

	t.Run("returns 404 for unknown platform", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/missing/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "missing"})
		w := httptest.NewRecorder()

		handler.ConnectPlatform(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 401 when login rejected", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		id := mockMgr.AddTestPlatform("tradelocker")
		mockMgr.SetError("connect", manager.ErrLoginFailed)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/platforms/"+id+"/connect", nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		w := httptest.NewRecorder()

		handler.ConnectPlatform(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})
}

func TestPlatformHandler_DisconnectPlatform(t *testing.T) {
	t.Run("disconnect is idempotent", func(t *testing.T) {
		mockMgr := NewMockPlatformManager()
		handler := NewPlatformHandler(mockMgr)

		id := mockMgr.AddTestPlatform("tradelocker")

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/platforms/"+id+"/connect", nil)
			req = mux.SetURLVars(req, map[string]string{"id": id})
			w := httptest.NewRecorder()

			handler.DisconnectPlatform(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("call %d: expected status %d, got %d", i+1, http.StatusOK, w.Code)
			}
		}
	})
}
