package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tradebridge/internal/api/handlers"
	"tradebridge/internal/api/middleware"
	"tradebridge/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Log        *zap.Logger
	Manager    handlers.PlatformManager
	Hub        *websocket.Hub
	APIKeyHash string // bcrypt-хеш API ключа; пусто = auth отключен
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	└── /platforms/
//	    ├── POST /detect - анализ формы логина по URL
//	    ├── POST / - сохранить учетные данные
//	    ├── GET / - список платформ
//	    ├── GET /{id} - информация о платформе
//	    ├── DELETE /{id} - удалить платформу
//	    ├── POST /{id}/connect - войти на платформу
//	    ├── DELETE /{id}/connect - закрыть сессию
//	    ├── POST /{id}/trade - исполнить ордер
//	    ├── POST /{id}/close-position - закрыть позицию
//	    ├── GET /{id}/interface - снимок торгового интерфейса
//	    ├── POST /{id}/interface/reanalyze - переанализ интерфейса
//	    ├── POST /{id}/2fa/totp - генерация TOTP секрета
//	    ├── POST /{id}/2fa/verify - проверка кода
//	    └── POST /{id}/2fa/backup-codes - перевыпуск резервных кодов
//
// /ws/stream - WebSocket для real-time обновлений
// /health - проверка живости
// /metrics - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. APIKeyAuth (только для /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIKeyAuth(log, deps.APIKeyHash))

	if deps.Manager != nil {
		platformHandler := handlers.NewPlatformHandler(deps.Manager)
		tradeHandler := handlers.NewTradeHandler(deps.Manager)
		twoFAHandler := handlers.NewTwoFAHandler(deps.Manager)

		// Platform routes
		api.HandleFunc("/platforms/detect", platformHandler.DetectForm).Methods("POST")
		api.HandleFunc("/platforms", platformHandler.SavePlatform).Methods("POST")
		api.HandleFunc("/platforms", platformHandler.GetPlatforms).Methods("GET")
		api.HandleFunc("/platforms/{id}", platformHandler.GetPlatform).Methods("GET")
		api.HandleFunc("/platforms/{id}", platformHandler.DeletePlatform).Methods("DELETE")
		api.HandleFunc("/platforms/{id}/connect", platformHandler.ConnectPlatform).Methods("POST")
		api.HandleFunc("/platforms/{id}/connect", platformHandler.DisconnectPlatform).Methods("DELETE")

		// Trade routes
		api.HandleFunc("/platforms/{id}/trade", tradeHandler.ExecuteTrade).Methods("POST")
		api.HandleFunc("/platforms/{id}/close-position", tradeHandler.ClosePosition).Methods("POST")
		api.HandleFunc("/platforms/{id}/interface", tradeHandler.GetInterface).Methods("GET")
		api.HandleFunc("/platforms/{id}/interface/reanalyze", tradeHandler.ReanalyzeInterface).Methods("POST")

		// 2FA routes
		api.HandleFunc("/platforms/{id}/2fa/totp", twoFAHandler.SetupTOTP).Methods("POST")
		api.HandleFunc("/platforms/{id}/2fa/verify", twoFAHandler.VerifyTwoFA).Methods("POST")
		api.HandleFunc("/platforms/{id}/2fa/backup-codes", twoFAHandler.RegenerateBackupCodes).Methods("POST")
	}

	// WebSocket route (без auth middleware: браузерный WebSocket API
	// не умеет ставить заголовки, origin проверяется при upgrade)
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
