package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tradebridge/internal/browser"
	"tradebridge/internal/manager"
	"tradebridge/internal/models"
	"tradebridge/pkg/utils"
)

// DetectFormRequest - тело запроса для анализа страницы логина
type DetectFormRequest struct {
	PlatformName string `json:"platform_name"`
	LoginURL     string `json:"login_url"`
}

// SavePlatformRequest - тело запроса для сохранения учетных данных
type SavePlatformRequest struct {
	PlatformName string `json:"platform_name"`
	LoginURL     string `json:"login_url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	APIKey       string `json:"api_key,omitempty"`
	APISecret    string `json:"api_secret,omitempty"`
}

// SavePlatformResponse - ответ с идентификатором созданной платформы
type SavePlatformResponse struct {
	PlatformID string `json:"platform_id"`
	Message    string `json:"message"`
}

// PlatformHandler отвечает за управление торговыми платформами
//
// Endpoints:
// - POST /api/v1/platforms/detect - анализ формы логина по URL
// - POST /api/v1/platforms - сохранение учетных данных платформы
// - GET /api/v1/platforms - список платформ
// - GET /api/v1/platforms/{id} - информация о платформе
// - DELETE /api/v1/platforms/{id} - удаление платформы
// - POST /api/v1/platforms/{id}/connect - вход на платформу
// - DELETE /api/v1/platforms/{id}/connect - отключение от платформы
type PlatformHandler struct {
	manager PlatformManager
}

// NewPlatformHandler создает новый PlatformHandler
func NewPlatformHandler(manager PlatformManager) *PlatformHandler {
	return &PlatformHandler{manager: manager}
}

// DetectForm анализирует страницу логина и возвращает найденную форму
// POST /api/v1/platforms/detect
//
// Тело запроса:
//
//	{
//	  "platform_name": "TradeLocker",
//	  "login_url": "https://example.com/login"
//	}
//
// Ответы:
// - 200 OK: форма (детектированная или fallback-шаблон)
// - 400 Bad Request: некорректные данные
func (h *PlatformHandler) DetectForm(w http.ResponseWriter, r *http.Request) {
	var req DetectFormRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := utils.ValidatePlatformName(req.PlatformName); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid platform name", err.Error())
		return
	}
	if err := utils.ValidateLoginURL(req.LoginURL); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid login URL", err.Error())
		return
	}

	// AddPlatform никогда не падает: при неудаче анализа возвращается
	// запасной шаблон формы для известных брокеров
	form := h.manager.AddPlatform(r.Context(), req.PlatformName, req.LoginURL)
	respondWithJSON(w, http.StatusOK, form)
}

// SavePlatform сохраняет учетные данные платформы (шифруются при записи)
// POST /api/v1/platforms
//
// Ответы:
// - 201 Created: платформа сохранена, возвращается platform_id
// - 400 Bad Request: некорректные данные
// - 409 Conflict: платформа с таким ID уже существует
func (h *PlatformHandler) SavePlatform(w http.ResponseWriter, r *http.Request) {
	var req SavePlatformRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := utils.ValidatePlatformName(req.PlatformName); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid platform name", err.Error())
		return
	}
	if err := utils.ValidateLoginURL(req.LoginURL); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid login URL", err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		respondWithError(w, http.StatusBadRequest, "Username is required", "")
		return
	}
	if req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Password is required", "")
		return
	}

	cred := &models.PlatformCredential{
		PlatformName: req.PlatformName,
		LoginURL:     req.LoginURL,
		Username:     req.Username,
		Password:     req.Password,
		APIKey:       req.APIKey,
		APISecret:    req.APISecret,
	}

	platformID, err := h.manager.SaveCredentials(r.Context(), cred)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to save credentials", err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, SavePlatformResponse{
		PlatformID: platformID,
		Message:    "Platform credentials saved successfully",
	})
}

// GetPlatforms возвращает список всех платформ (без секретов)
// GET /api/v1/platforms
func (h *PlatformHandler) GetPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.manager.ListPlatforms(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list platforms", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, platforms)
}

// GetPlatform возвращает информацию об одной платформе
// GET /api/v1/platforms/{id}
//
// Ответы:
// - 200 OK: информация о платформе
// - 404 Not Found: платформа не найдена
func (h *PlatformHandler) GetPlatform(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	info, err := h.manager.GetPlatform(r.Context(), platformID)
	if err != nil {
		if errors.Is(err, manager.ErrPlatformNotFound) {
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to get platform", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, info)
}

// DeletePlatform удаляет платформу и ее учетные данные
// DELETE /api/v1/platforms/{id}
//
// Ответы:
// - 200 OK: платформа удалена (сессия закрыта, если была)
// - 404 Not Found: платформа не найдена
func (h *PlatformHandler) DeletePlatform(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	if err := h.manager.DeletePlatform(r.Context(), platformID); err != nil {
		if errors.Is(err, manager.ErrPlatformNotFound) {
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to delete platform", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Platform deleted successfully",
	})
}

// ConnectPlatform выполняет вход на платформу через браузер
// POST /api/v1/platforms/{id}/connect
//
// Ответы:
// - 200 OK: вход выполнен, интерфейс проанализирован
// - 401 Unauthorized: логин отклонен платформой
// - 404 Not Found: платформа не найдена
// - 502 Bad Gateway: страница логина недоступна
func (h *PlatformHandler) ConnectPlatform(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	err := h.manager.Connect(r.Context(), platformID)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrPlatformNotFound):
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
		case errors.Is(err, manager.ErrLoginFailed):
			respondWithError(w, http.StatusUnauthorized, "Login rejected by platform", "Check stored credentials")
		case errors.Is(err, browser.ErrNavigationFailed):
			respondWithError(w, http.StatusBadGateway, "Failed to reach login page", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to connect", err.Error())
		}
		return
	}

	info, err := h.manager.GetPlatform(r.Context(), platformID)
	if err != nil {
		// Сессия установлена, но данные не прочитались - все равно успех
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":     "Platform connected successfully",
			"platform_id": platformID,
			"connected":   true,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Platform connected successfully",
		Data:    info,
	})
}

// DisconnectPlatform закрывает браузерную сессию платформы
// DELETE /api/v1/platforms/{id}/connect
//
// Отключение идемпотентно: повторный вызов для неподключенной
// платформы тоже возвращает 200.
func (h *PlatformHandler) DisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	h.manager.Disconnect(r.Context(), platformID)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Platform disconnected",
		"platform_id": platformID,
		"connected":   false,
	})
}
