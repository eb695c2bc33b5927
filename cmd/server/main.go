package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"tradebridge/internal/api"
	"tradebridge/internal/automation"
	"tradebridge/internal/browser"
	"tradebridge/internal/config"
	"tradebridge/internal/manager"
	"tradebridge/internal/repository"
	"tradebridge/internal/websocket"
	"tradebridge/pkg/crypto"
	"tradebridge/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zlog := logger.Desugar()

	// Мастер-ключ шифрования (создается при первом запуске)
	key, err := crypto.LoadOrCreateKey(cfg.Security.KeyFile)
	if err != nil {
		logger.Fatalw("Failed to load encryption key", "error", err)
	}
	security, err := crypto.NewSecurityManager(key)
	if err != nil {
		logger.Fatalw("Failed to init security manager", "error", err)
	}

	// Хранилище учетных данных
	store, err := openStore(cfg, security)
	if err != nil {
		logger.Fatalw("Failed to open credential store", "error", err)
	}
	defer store.Close()

	logger.Infow("Credential store ready", "backend", cfg.Storage.Backend)

	// Браузерный движок и автоматизация
	driver := browser.NewChromeDriver(cfg.Browser.Headless)
	automator := automation.New(zlog,
		automation.WithNavTimeout(cfg.Browser.NavTimeout),
		automation.WithStepTimeout(cfg.Browser.StepTimeout),
	)

	// WebSocket hub для real-time обновлений
	hub := websocket.NewHub(zlog)
	go hub.Run()

	// Менеджер платформ
	mgr := manager.New(zlog, store, driver, automator,
		manager.WithBroadcaster(hub),
		manager.WithInterfaceTTL(cfg.Manager.InterfaceTTL),
	)

	// Периодическая чистка протухших снимков интерфейса
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Manager.SweepSchedule, mgr.SweepStaleInterfaces); err != nil {
		logger.Fatalw("Invalid sweep schedule", "schedule", cfg.Manager.SweepSchedule, "error", err)
	}
	scheduler.Start()

	// HTTP роутер
	router := api.SetupRoutes(&api.Dependencies{
		Log:        zlog,
		Manager:    mgr,
		Hub:        hub,
		APIKeyHash: cfg.Security.APIKeyHash,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Infow("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("Server shutdown error", "error", err)
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	hub.Stop()

	// Закрываем браузерные сессии
	if err := mgr.Close(); err != nil {
		logger.Errorw("Error closing platform sessions", "error", err)
	}

	logger.Info("Server stopped")
}

// openStore выбирает бэкенд хранилища по конфигурации
func openStore(cfg *config.Config, security *crypto.SecurityManager) (repository.CredentialStore, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return repository.OpenPostgresStore(ctx, cfg.Database.DSN(), security)
	default:
		return repository.NewFileStore(cfg.Storage.CredentialsFile, security)
	}
}
