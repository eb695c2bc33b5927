package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradebridge/internal/automation"
	"tradebridge/internal/browser"
	"tradebridge/internal/models"
	"tradebridge/internal/repository"
	"tradebridge/pkg/retry"
	"tradebridge/pkg/totp"
	"tradebridge/pkg/utils"
)

// Ошибки менеджера
var (
	ErrPlatformNotFound   = errors.New("platform not found")
	ErrNotConnected       = errors.New("platform is not connected")
	ErrLoginFailed        = errors.New("login verification failed")
	ErrTwoFANotConfigured = errors.New("two-factor authentication is not configured")
	ErrInvalidTwoFACode   = errors.New("invalid two-factor code")
)

// DefaultInterfaceTTL - срок жизни кэша анализа интерфейса.
// SPA-платформы перерисовывают торговую панель, селекторы устаревают.
const DefaultInterfaceTTL = 30 * time.Minute

// Broadcaster отправляет real-time события подписчикам (WebSocket hub)
type Broadcaster interface {
	BroadcastConnectionStatus(platformID, state string)
	BroadcastPlatformUpdate(platformID, event string, info *models.PlatformInfo)
	BroadcastTradeResult(platformID string, result *models.TradeResult)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastConnectionStatus(string, string)                     {}
func (noopBroadcaster) BroadcastPlatformUpdate(string, string, *models.PlatformInfo) {}
func (noopBroadcaster) BroadcastTradeResult(string, *models.TradeResult)             {}

// Manager - центральная точка управления подключениями к торговым
// платформам.
//
// Владеет учетными данными (через CredentialStore), браузерными
// сессиями и кэшем анализа интерфейсов. Все операции API проходят
// через него: добавление платформы, логин, сделки, закрытие позиций.
type Manager struct {
	log       *zap.Logger
	store     repository.CredentialStore
	driver    browser.Driver
	automator *automation.Automator

	broadcaster  Broadcaster
	interfaceTTL time.Duration
	now          func() time.Time

	mu sync.RWMutex

	// Обнаруженные формы логина по slug имени платформы.
	// Заполняется в AddPlatform, используется в Connect.
	forms map[string]*models.DetectedForm

	// Живые сессии по platform_id
	sessions map[string]*session
}

// Option настраивает Manager
type Option func(*Manager)

// WithBroadcaster подключает WebSocket hub (или другой получатель событий)
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) { m.broadcaster = b }
}

// WithInterfaceTTL задает срок жизни кэша анализа интерфейса
func WithInterfaceTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.interfaceTTL = ttl }
}

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New создает менеджер платформ
func New(log *zap.Logger, store repository.CredentialStore, driver browser.Driver, automator *automation.Automator, opts ...Option) *Manager {
	m := &Manager{
		log:          log,
		store:        store,
		driver:       driver,
		automator:    automator,
		broadcaster:  noopBroadcaster{},
		interfaceTTL: DefaultInterfaceTTL,
		now:          time.Now,
		forms:        make(map[string]*models.DetectedForm),
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ============================================================
// Платформы
// ============================================================

// AddPlatform открывает страницу логина и определяет структуру формы.
//
// Никогда не возвращает ошибку детекции наружу: если страница не
// загрузилась или эвристика ничего не нашла, возвращается fallback
// форма со стандартными селекторами. Платформа при этом остается
// пригодной для подключения.
func (m *Manager) AddPlatform(ctx context.Context, name, loginURL string) *models.DetectedForm {
	slug := utils.Slug(name)

	form, err := m.detectForm(ctx, loginURL)
	if err != nil {
		m.log.Warn("login form detection failed, using fallback",
			zap.String("platform", name),
			zap.String("url", loginURL),
			zap.Error(err))
		form = automation.FallbackForm(name)
	}

	m.mu.Lock()
	m.forms[slug] = form
	m.mu.Unlock()

	m.log.Info("platform login form detected",
		zap.String("platform", name),
		zap.Int("fields", len(form.LoginFields)),
		zap.Bool("two_fa", form.TwoFADetected),
		zap.Bool("captcha", form.CaptchaDetected))
	return form
}

func (m *Manager) detectForm(ctx context.Context, loginURL string) (*models.DetectedForm, error) {
	page, err := m.driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	// Навигация до незнакомой платформы падает чаще всего по сети,
	// а не по структуре страницы - даем ей несколько попыток
	return retry.DoWithResult(ctx, func() (*models.DetectedForm, error) {
		return m.automator.AnalyzeLoginPage(ctx, page, loginURL)
	}, retry.NavigationConfig())
}

// SaveCredentials сохраняет учетные данные платформы в хранилище.
// Если PlatformID пуст, генерирует новый: slug имени + unix timestamp.
func (m *Manager) SaveCredentials(ctx context.Context, cred *models.PlatformCredential) (string, error) {
	now := m.now()
	if cred.PlatformID == "" {
		cred.PlatformID = fmt.Sprintf("%s_%d", utils.Slug(cred.PlatformName), now.Unix())
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.IsActive = true

	if err := m.store.Put(ctx, cred); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}

	m.broadcaster.BroadcastPlatformUpdate(cred.PlatformID, "added", m.toInfo(cred))
	m.log.Info("platform credentials saved", zap.String("platform_id", cred.PlatformID))
	return cred.PlatformID, nil
}

// Connect выполняет логин на платформу и анализирует торговый интерфейс.
//
// Прогресс логина транслируется через Broadcaster. При успехе сессия
// остается открытой для последующих сделок.
func (m *Manager) Connect(ctx context.Context, platformID string) error {
	cred, err := m.store.Get(ctx, platformID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrPlatformNotFound
		}
		return err
	}

	sess := m.session(platformID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Реконнект: старую страницу закрываем
	wasConnected := sess.connected()
	sess.drop()
	if wasConnected {
		ConnectedPlatforms.Dec()
	}

	page, err := m.driver.NewPage(ctx)
	if err != nil {
		recordConnect(false)
		return fmt.Errorf("open page: %w", err)
	}

	form := m.loginForm(cred)

	ok, err := m.automator.PerformLogin(ctx, page, cred, form, func(state string) {
		m.broadcaster.BroadcastConnectionStatus(platformID, state)
	})
	if err != nil {
		page.Close()
		recordConnect(false)
		return fmt.Errorf("login to %s: %w", cred.PlatformName, err)
	}
	if !ok {
		page.Close()
		recordConnect(false)
		return ErrLoginFailed
	}

	analysis, err := m.automator.AnalyzeInterface(ctx, page)
	if err != nil {
		// Логин прошел, интерфейс разберем позже по требованию
		m.log.Warn("interface analysis failed after login",
			zap.String("platform_id", platformID), zap.Error(err))
		analysis = &models.InterfaceAnalysis{AnalyzedAt: m.now()}
	}

	sess.page = page
	sess.analysis = analysis
	ConnectedPlatforms.Inc()
	recordConnect(true)

	cred.LastUsed = m.now()
	if err := retry.Do(ctx, func() error {
		return m.store.Put(ctx, cred)
	}, retry.StoreConfig()); err != nil {
		m.log.Warn("failed to update last_used", zap.String("platform_id", platformID), zap.Error(err))
	}

	m.broadcaster.BroadcastPlatformUpdate(platformID, "connected", m.toInfoConnected(cred, true))
	m.log.Info("platform connected",
		zap.String("platform_id", platformID),
		zap.Int("buy_elements", len(analysis.BuyElements)),
		zap.Int("sell_elements", len(analysis.SellElements)))
	return nil
}

// loginForm возвращает форму, обнаруженную в AddPlatform, либо fallback
func (m *Manager) loginForm(cred *models.PlatformCredential) *models.DetectedForm {
	m.mu.RLock()
	form := m.forms[utils.Slug(cred.PlatformName)]
	m.mu.RUnlock()
	if form != nil {
		return form
	}
	return automation.FallbackForm(cred.PlatformName)
}

// Disconnect закрывает браузерную сессию платформы.
// Учетные данные остаются в хранилище. Идемпотентен.
func (m *Manager) Disconnect(ctx context.Context, platformID string) {
	m.mu.RLock()
	sess := m.sessions[platformID]
	m.mu.RUnlock()
	if sess == nil {
		return
	}

	sess.mu.Lock()
	if sess.connected() {
		sess.drop()
		ConnectedPlatforms.Dec()
		m.broadcaster.BroadcastPlatformUpdate(platformID, "disconnected", nil)
		m.log.Info("platform disconnected", zap.String("platform_id", platformID))
	}
	sess.mu.Unlock()
}

// DeletePlatform отключает платформу и удаляет учетные данные
func (m *Manager) DeletePlatform(ctx context.Context, platformID string) error {
	m.Disconnect(ctx, platformID)

	m.mu.Lock()
	delete(m.sessions, platformID)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, platformID); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrPlatformNotFound
		}
		return err
	}

	m.broadcaster.BroadcastPlatformUpdate(platformID, "deleted", nil)
	m.log.Info("platform deleted", zap.String("platform_id", platformID))
	return nil
}

// ListPlatforms возвращает все платформы без секретов
func (m *Manager) ListPlatforms(ctx context.Context) ([]*models.PlatformInfo, error) {
	creds, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*models.PlatformInfo, 0, len(creds))
	for _, cred := range creds {
		infos = append(infos, m.toInfo(cred))
	}
	return infos, nil
}

// GetPlatform возвращает одну платформу без секретов
func (m *Manager) GetPlatform(ctx context.Context, platformID string) (*models.PlatformInfo, error) {
	cred, err := m.store.Get(ctx, platformID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrPlatformNotFound
		}
		return nil, err
	}
	return m.toInfo(cred), nil
}

// ============================================================
// Торговые операции
// ============================================================

// ExecuteTrade исполняет сделку на подключенной платформе.
//
// Если сессия потеряна, делает одну попытку реконнекта. Результат
// всегда не-nil: ошибки исполнения приходят как Success=false.
func (m *Manager) ExecuteTrade(ctx context.Context, platformID string, order *models.TradeOrder) (*models.TradeResult, error) {
	sess := m.session(platformID)

	sess.mu.Lock()
	connected := sess.connected()
	sess.mu.Unlock()

	if !connected {
		// Одна попытка реконнекта: сессии умирают от таймаутов
		// платформы, а не от отзыва кредов
		m.log.Info("session lost, attempting reconnect", zap.String("platform_id", platformID))
		if err := m.Connect(ctx, platformID); err != nil {
			if errors.Is(err, ErrPlatformNotFound) {
				return nil, err
			}
			return m.failedResult("Platform not connected"), nil
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.connected() {
		return m.failedResult("Platform not connected"), nil
	}

	if err := sess.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.refreshAnalysisLocked(ctx, platformID, sess)

	result := m.automator.ExecuteTrade(ctx, sess.page, order, sess.analysis)
	m.broadcaster.BroadcastTradeResult(platformID, result)
	return result, nil
}

// ClosePosition закрывает позицию по символу.
//
// В отличие от ExecuteTrade реконнекта нет: закрытие позиции - это
// срочная операция поверх живой сессии, неявный повторный логин здесь
// только маскировал бы проблему.
func (m *Manager) ClosePosition(ctx context.Context, platformID, symbol string) (*models.TradeResult, error) {
	m.mu.RLock()
	sess := m.sessions[platformID]
	m.mu.RUnlock()
	if sess == nil {
		return m.failedResult("Platform not connected"), nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.connected() {
		return m.failedResult("Platform not connected"), nil
	}

	if err := sess.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.refreshAnalysisLocked(ctx, platformID, sess)

	result := m.automator.ClosePosition(ctx, sess.page, symbol, sess.analysis)
	m.broadcaster.BroadcastTradeResult(platformID, result)
	return result, nil
}

// refreshAnalysisLocked обновляет кэш анализа, если он протух.
// Вызывать под sess.mu.
func (m *Manager) refreshAnalysisLocked(ctx context.Context, platformID string, sess *session) {
	if sess.analysis != nil && !sess.analysis.Expired(m.interfaceTTL, m.now()) && !sess.analysis.IsEmpty() {
		return
	}

	analysis, err := m.automator.AnalyzeInterface(ctx, sess.page)
	if err != nil {
		m.log.Warn("interface reanalysis failed",
			zap.String("platform_id", platformID), zap.Error(err))
		return
	}
	sess.analysis = analysis
}

// ============================================================
// Анализ интерфейса
// ============================================================

// GetInterfaceInfo возвращает кэшированный анализ торгового интерфейса
func (m *Manager) GetInterfaceInfo(platformID string) (*models.InterfaceAnalysis, error) {
	m.mu.RLock()
	sess := m.sessions[platformID]
	m.mu.RUnlock()
	if sess == nil {
		return nil, ErrNotConnected
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.connected() || sess.analysis == nil {
		return nil, ErrNotConnected
	}
	return sess.analysis, nil
}

// ReanalyzeInterface принудительно переанализирует открытую страницу
func (m *Manager) ReanalyzeInterface(ctx context.Context, platformID string) (*models.InterfaceAnalysis, error) {
	m.mu.RLock()
	sess := m.sessions[platformID]
	m.mu.RUnlock()
	if sess == nil {
		return nil, ErrNotConnected
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.connected() {
		return nil, ErrNotConnected
	}

	analysis, err := m.automator.AnalyzeInterface(ctx, sess.page)
	if err != nil {
		return nil, err
	}
	sess.analysis = analysis

	m.broadcaster.BroadcastPlatformUpdate(platformID, "reanalyzed", nil)
	return analysis, nil
}

// SweepStaleInterfaces сбрасывает протухшие кэши анализа.
// Запускается по расписанию; следующая сделка переанализирует страницу.
func (m *Manager) SweepStaleInterfaces() {
	m.mu.RLock()
	sessions := make(map[string]*session, len(m.sessions))
	for id, sess := range m.sessions {
		sessions[id] = sess
	}
	m.mu.RUnlock()

	now := m.now()
	for id, sess := range sessions {
		sess.mu.Lock()
		if sess.analysis != nil && sess.analysis.Expired(m.interfaceTTL, now) {
			sess.analysis = nil
			InterfaceSweeps.Inc()
			m.log.Debug("interface analysis cache expired", zap.String("platform_id", id))
		}
		sess.mu.Unlock()
	}
}

// ============================================================
// Двухфакторная аутентификация
// ============================================================

// SetupTOTP генерирует TOTP секрет для платформы.
//
// Секрет и резервные коды сохраняются сразу, но 2FA остается
// выключенной до первого успешного VerifyTwoFA: пользователь должен
// доказать, что authenticator настроен, иначе он запрет сам себя.
func (m *Manager) SetupTOTP(ctx context.Context, platformID string) (*totp.Setup, error) {
	cred, err := m.store.Get(ctx, platformID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrPlatformNotFound
		}
		return nil, err
	}

	setup, err := totp.GenerateSetup(cred.Username, "TradeBridge")
	if err != nil {
		return nil, fmt.Errorf("generate totp setup: %w", err)
	}

	cred.TwoFA = &models.TwoFactorConfig{
		Enabled:     false,
		Method:      models.AuthMethodTOTP,
		TOTPSecret:  setup.Secret,
		BackupCodes: setup.BackupCodes,
	}
	if err := m.store.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("save totp config: %w", err)
	}
	return setup, nil
}

// VerifyTwoFA проверяет TOTP код или резервный код.
//
// Первая успешная проверка включает 2FA. Использованный резервный
// код сжигается.
func (m *Manager) VerifyTwoFA(ctx context.Context, platformID, code string) error {
	cred, err := m.store.Get(ctx, platformID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrPlatformNotFound
		}
		return err
	}
	if cred.TwoFA == nil || cred.TwoFA.TOTPSecret == "" {
		return ErrTwoFANotConfigured
	}

	ok, err := totp.Verify(cred.TwoFA.TOTPSecret, code)
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}

	if !ok {
		// Резервные коды одноразовые
		for i, backup := range cred.TwoFA.BackupCodes {
			if backup == code {
				cred.TwoFA.BackupCodes = append(cred.TwoFA.BackupCodes[:i], cred.TwoFA.BackupCodes[i+1:]...)
				ok = true
				break
			}
		}
	}
	if !ok {
		return ErrInvalidTwoFACode
	}

	cred.TwoFA.Enabled = true
	if err := m.store.Put(ctx, cred); err != nil {
		return fmt.Errorf("save two-fa state: %w", err)
	}
	return nil
}

// RegenerateBackupCodes заменяет комплект резервных кодов
func (m *Manager) RegenerateBackupCodes(ctx context.Context, platformID string) ([]string, error) {
	cred, err := m.store.Get(ctx, platformID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrPlatformNotFound
		}
		return nil, err
	}
	if cred.TwoFA == nil {
		return nil, ErrTwoFANotConfigured
	}

	codes, err := totp.GenerateBackupCodes(totp.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	cred.TwoFA.BackupCodes = codes
	if err := m.store.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("save backup codes: %w", err)
	}
	return codes, nil
}

// ============================================================
// Служебное
// ============================================================

// Close закрывает все сессии и браузерный драйвер
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, sess := range m.sessions {
		sess.mu.Lock()
		if sess.connected() {
			sess.drop()
			ConnectedPlatforms.Dec()
		}
		sess.mu.Unlock()
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	return m.driver.Close()
}

// session возвращает (создавая при необходимости) сессию платформы
func (m *Manager) session(platformID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[platformID]
	if !ok {
		sess = newSession()
		m.sessions[platformID] = sess
	}
	return sess
}

func (m *Manager) toInfo(cred *models.PlatformCredential) *models.PlatformInfo {
	m.mu.RLock()
	sess := m.sessions[cred.PlatformID]
	m.mu.RUnlock()

	connected := false
	if sess != nil {
		sess.mu.Lock()
		connected = sess.connected()
		sess.mu.Unlock()
	}
	return m.toInfoConnected(cred, connected)
}

func (m *Manager) toInfoConnected(cred *models.PlatformCredential, connected bool) *models.PlatformInfo {
	return &models.PlatformInfo{
		PlatformID:   cred.PlatformID,
		PlatformName: cred.PlatformName,
		LoginURL:     cred.LoginURL,
		Username:     cred.Username,
		IsConnected:  connected,
		TwoFAEnabled: cred.TwoFA != nil && cred.TwoFA.Enabled,
		CreatedAt:    cred.CreatedAt,
		LastUsed:     cred.LastUsed,
	}
}

func (m *Manager) failedResult(message string) *models.TradeResult {
	return &models.TradeResult{
		Success:   false,
		Message:   message,
		Timestamp: m.now(),
	}
}
