package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tradebridge/internal/manager"
)

// VerifyTwoFARequest - тело запроса с кодом подтверждения
type VerifyTwoFARequest struct {
	Code string `json:"code"`
}

// BackupCodesResponse - ответ с новым набором резервных кодов
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

// TwoFAHandler отвечает за двухфакторную аутентификацию платформ
//
// Endpoints:
// - POST /api/v1/platforms/{id}/2fa/totp - генерация TOTP секрета
// - POST /api/v1/platforms/{id}/2fa/verify - проверка кода (активирует 2FA)
// - POST /api/v1/platforms/{id}/2fa/backup-codes - перевыпуск резервных кодов
type TwoFAHandler struct {
	manager PlatformManager
}

// NewTwoFAHandler создает новый TwoFAHandler
func NewTwoFAHandler(manager PlatformManager) *TwoFAHandler {
	return &TwoFAHandler{manager: manager}
}

// SetupTOTP генерирует TOTP секрет, QR-код и резервные коды.
// 2FA остается выключенной до первой успешной проверки кода.
// POST /api/v1/platforms/{id}/2fa/totp
//
// Ответы:
// - 200 OK: секрет, otpauth URI, QR-код (data URI) и резервные коды
// - 404 Not Found: платформа не найдена
func (h *TwoFAHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	setup, err := h.manager.SetupTOTP(r.Context(), platformID)
	if err != nil {
		if errors.Is(err, manager.ErrPlatformNotFound) {
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to setup TOTP", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, setup)
}

// VerifyTwoFA проверяет TOTP или резервный код.
// Первая успешная проверка активирует 2FA для платформы.
// Резервный код сжигается после использования.
// POST /api/v1/platforms/{id}/2fa/verify
//
// Ответы:
// - 200 OK: код принят
// - 400 Bad Request: 2FA не настроена или пустой код
// - 401 Unauthorized: код не прошел проверку
// - 404 Not Found: платформа не найдена
func (h *TwoFAHandler) VerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	var req VerifyTwoFARequest
	if !decodeBody(w, r, &req) {
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "Code is required", "")
		return
	}

	err := h.manager.VerifyTwoFA(r.Context(), platformID, code)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrPlatformNotFound):
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
		case errors.Is(err, manager.ErrTwoFANotConfigured):
			respondWithError(w, http.StatusBadRequest, "Two-factor auth is not configured", "Setup TOTP first")
		case errors.Is(err, manager.ErrInvalidTwoFACode):
			respondWithError(w, http.StatusUnauthorized, "Invalid verification code", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Verification failed", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Code verified successfully",
	})
}

// RegenerateBackupCodes выпускает новый набор резервных кодов,
// старые коды при этом перестают действовать.
// POST /api/v1/platforms/{id}/2fa/backup-codes
//
// Ответы:
// - 200 OK: новые резервные коды
// - 400 Bad Request: 2FA не настроена
// - 404 Not Found: платформа не найдена
func (h *TwoFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	platformID := mux.Vars(r)["id"]

	codes, err := h.manager.RegenerateBackupCodes(r.Context(), platformID)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrPlatformNotFound):
			respondWithError(w, http.StatusNotFound, "Platform not found", "")
		case errors.Is(err, manager.ErrTwoFANotConfigured):
			respondWithError(w, http.StatusBadRequest, "Two-factor auth is not configured", "Setup TOTP first")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to regenerate backup codes", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, BackupCodesResponse{
		BackupCodes: codes,
		Message:     "Backup codes regenerated, previous codes are no longer valid",
	})
}
