package handlers

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"tradebridge/internal/models"
	"tradebridge/pkg/totp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20 // 1 MB

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PlatformManager - контракт между HTTP слоем и менеджером платформ.
// Handlers зависят от интерфейса, чтобы тесты могли подставить мок.
type PlatformManager interface {
	AddPlatform(ctx context.Context, name, loginURL string) *models.DetectedForm
	SaveCredentials(ctx context.Context, cred *models.PlatformCredential) (string, error)
	Connect(ctx context.Context, platformID string) error
	Disconnect(ctx context.Context, platformID string)
	DeletePlatform(ctx context.Context, platformID string) error
	ListPlatforms(ctx context.Context) ([]*models.PlatformInfo, error)
	GetPlatform(ctx context.Context, platformID string) (*models.PlatformInfo, error)

	ExecuteTrade(ctx context.Context, platformID string, order *models.TradeOrder) (*models.TradeResult, error)
	ClosePosition(ctx context.Context, platformID, symbol string) (*models.TradeResult, error)
	GetInterfaceInfo(platformID string) (*models.InterfaceAnalysis, error)
	ReanalyzeInterface(ctx context.Context, platformID string) (*models.InterfaceAnalysis, error)

	SetupTOTP(ctx context.Context, platformID string) (*totp.Setup, error)
	VerifyTwoFA(ctx context.Context, platformID, code string) error
	RegenerateBackupCodes(ctx context.Context, platformID string) ([]string, error)
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message string, details string) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// decodeBody ограничивает размер тела и декодирует JSON в dst.
// При ошибке сам пишет 400 и возвращает false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}
