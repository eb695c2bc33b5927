package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"tradebridge/internal/automation"
	"tradebridge/internal/browser"
	"tradebridge/internal/models"
	"tradebridge/internal/repository"
	"tradebridge/pkg/totp"
)

// ============================================================
// Test fixtures
// ============================================================

const loginPageHTML = `
<html>
<body>
	<form class="signin-form">
		<input type="text" name="username" placeholder="Your username">
		<input type="password" name="password">
		<button type="submit">Sign In</button>
	</form>
</body>
</html>`

const dashboardHTML = `
<html>
<body>
	<div class="navbar">Account</div>
	<div class="trading-panel">
		<input name="symbol" placeholder="Search instrument">
		<input name="order_quantity" type="number">
		<button data-side="buy">Buy</button>
		<button class="sell-button">Sell</button>
	</div>
	<table class="positions-table">
		<tr><th>Symbol</th><th>Side</th><th>Action</th></tr>
		<tr class="position-row"><td>BTCUSD</td><td>Long</td><td><button class="close-button">Close</button></td></tr>
	</table>
</body>
</html>`

const loginURL = "https://broker.example/login"

// memStore - потокобезопасное in-memory хранилище для тестов
type memStore struct {
	mu    sync.Mutex
	creds map[string]*models.PlatformCredential
}

func newMemStore() *memStore {
	return &memStore{creds: make(map[string]*models.PlatformCredential)}
}

func (s *memStore) Get(_ context.Context, platformID string) (*models.PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[platformID]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	clone := *cred
	return &clone, nil
}

func (s *memStore) Put(_ context.Context, cred *models.PlatformCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cred
	s.creds[cred.PlatformID] = &clone
	return nil
}

func (s *memStore) Delete(_ context.Context, platformID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[platformID]; !ok {
		return repository.ErrCredentialNotFound
	}
	delete(s.creds, platformID)
	return nil
}

func (s *memStore) List(_ context.Context) ([]*models.PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PlatformCredential, 0, len(s.creds))
	for _, cred := range s.creds {
		clone := *cred
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// loginDriver оборачивает StaticDriver и настраивает каждую страницу
// так, что клик по submit уводит на торговый кабинет
type loginDriver struct {
	*browser.StaticDriver
}

func (d *loginDriver) NewPage(ctx context.Context) (browser.Page, error) {
	page, err := d.StaticDriver.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	sp := page.(*browser.StaticPage)
	sp.ClickHook = func(selector string) {
		if strings.Contains(selector, "submit") {
			sp.SetContent(dashboardHTML)
			sp.SetURL("https://broker.example/dashboard")
		}
	}
	return sp, nil
}

// recordBroadcaster собирает события для ассертов
type recordBroadcaster struct {
	mu      sync.Mutex
	states  []string
	events  []string
	results []*models.TradeResult
}

func (b *recordBroadcaster) BroadcastConnectionStatus(_, state string) {
	b.mu.Lock()
	b.states = append(b.states, state)
	b.mu.Unlock()
}

func (b *recordBroadcaster) BroadcastPlatformUpdate(_, event string, _ *models.PlatformInfo) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *recordBroadcaster) BroadcastTradeResult(_ string, result *models.TradeResult) {
	b.mu.Lock()
	b.results = append(b.results, result)
	b.mu.Unlock()
}

func newTestManager(t *testing.T, sources map[string]string) (*Manager, *memStore, *recordBroadcaster) {
	t.Helper()
	store := newMemStore()
	driver := &loginDriver{StaticDriver: browser.NewStaticDriver(sources)}
	broadcaster := &recordBroadcaster{}
	m := New(zap.NewNop(), store, driver, automation.New(zap.NewNop()),
		WithBroadcaster(broadcaster))
	t.Cleanup(func() { m.Close() })
	return m, store, broadcaster
}

func saveTestPlatform(t *testing.T, m *Manager) string {
	t.Helper()
	id, err := m.SaveCredentials(context.Background(), &models.PlatformCredential{
		PlatformName: "Test Broker",
		LoginURL:     loginURL,
		Username:     "trader@example.com",
		Password:     "s3cret",
	})
	if err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	return id
}

// ============================================================
// Tests
// ============================================================

func TestSaveCredentialsGeneratesID(t *testing.T) {
	m, store, _ := newTestManager(t, nil)

	id := saveTestPlatform(t, m)
	if !strings.HasPrefix(id, "test-broker_") {
		t.Errorf("platform id = %q, expected test-broker_<unix> format", id)
	}

	cred, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("credential was not stored: %v", err)
	}
	if !cred.IsActive {
		t.Error("stored credential must be active")
	}
	if cred.CreatedAt.IsZero() {
		t.Error("CreatedAt must be set")
	}
}

func TestAddPlatformDetectsForm(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})

	form := m.AddPlatform(context.Background(), "Test Broker", loginURL)
	if len(form.LoginFields) != 2 {
		t.Fatalf("login fields = %d, expected 2", len(form.LoginFields))
	}
	if form.SubmitButton != `button[type="submit"]` {
		t.Errorf("submit button = %q", form.SubmitButton)
	}
}

func TestAddPlatformFallsBackOnError(t *testing.T) {
	// Драйвер без источников: навигация падает, ошибка наружу не выходит
	m, _, _ := newTestManager(t, nil)

	form := m.AddPlatform(context.Background(), "TradeLocker", "https://unknown.example/login")
	if form == nil || len(form.LoginFields) == 0 {
		t.Fatal("expected fallback form")
	}

	// Fallback для известных брокерских платформ включает выбор сервера
	hasServer := false
	for _, f := range form.LoginFields {
		if f.Type == models.FieldTypeSelect {
			hasServer = true
		}
	}
	if !hasServer {
		t.Error("fallback form for TradeLocker must include server field")
	}
}

func TestConnectAndExecuteTrade(t *testing.T) {
	m, _, broadcaster := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	m.AddPlatform(ctx, "Test Broker", loginURL)
	id := saveTestPlatform(t, m)

	if err := m.Connect(ctx, id); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Прогресс логина транслировался
	if len(broadcaster.states) == 0 {
		t.Error("expected connection status broadcasts")
	}
	last := broadcaster.states[len(broadcaster.states)-1]
	if last != models.LoginStateSuccess {
		t.Errorf("final state = %q, expected %q", last, models.LoginStateSuccess)
	}

	// Интерфейс проанализирован при подключении
	analysis, err := m.GetInterfaceInfo(id)
	if err != nil {
		t.Fatalf("GetInterfaceInfo: %v", err)
	}
	if len(analysis.BuyElements) == 0 {
		t.Error("expected buy elements in interface analysis")
	}

	result, err := m.ExecuteTrade(ctx, id, &models.TradeOrder{
		Symbol:    "BTCUSD",
		Action:    models.ActionBuy,
		Quantity:  0.5,
		OrderType: "market",
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !result.Success {
		t.Fatalf("trade failed: %s", result.Message)
	}
	if result.OrderID == "" {
		t.Error("expected order id")
	}

	if len(broadcaster.results) != 1 {
		t.Fatalf("trade result broadcasts = %d, expected 1", len(broadcaster.results))
	}
}

func TestConnectUnknownPlatform(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	err := m.Connect(context.Background(), "missing_123")
	if !errors.Is(err, ErrPlatformNotFound) {
		t.Errorf("expected ErrPlatformNotFound, got %v", err)
	}
}

func TestExecuteTradeReconnects(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	m.AddPlatform(ctx, "Test Broker", loginURL)
	id := saveTestPlatform(t, m)

	// Сессии нет: ExecuteTrade должен сам подключиться
	result, err := m.ExecuteTrade(ctx, id, &models.TradeOrder{
		Symbol:    "BTCUSD",
		Action:    models.ActionBuy,
		Quantity:  1,
		OrderType: "market",
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !result.Success {
		t.Fatalf("trade after reconnect failed: %s", result.Message)
	}
}

func TestExecuteTradeNotConnected(t *testing.T) {
	// Страница логина недоступна: реконнект невозможен
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	id := saveTestPlatform(t, m)

	result, err := m.ExecuteTrade(ctx, id, &models.TradeOrder{
		Symbol: "BTCUSD", Action: models.ActionBuy, Quantity: 1, OrderType: "market",
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if result.Success {
		t.Fatal("trade must fail without connection")
	}
	if result.Message != "Platform not connected" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestClosePositionRequiresConnection(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	id := saveTestPlatform(t, m)

	// Без сессии закрытие не делает реконнект
	result, err := m.ClosePosition(ctx, id, "BTCUSD")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if result.Success {
		t.Fatal("close must fail without connection")
	}
	if result.Message != "Platform not connected" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestClosePosition(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	m.AddPlatform(ctx, "Test Broker", loginURL)
	id := saveTestPlatform(t, m)
	if err := m.Connect(ctx, id); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result, err := m.ClosePosition(ctx, id, "BTCUSD")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !result.Success {
		t.Fatalf("close failed: %s", result.Message)
	}
	if !strings.HasPrefix(result.OrderID, "CLOSE_BTCUSD_") {
		t.Errorf("close order id = %q", result.OrderID)
	}
}

func TestDisconnectAndDelete(t *testing.T) {
	m, store, broadcaster := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	m.AddPlatform(ctx, "Test Broker", loginURL)
	id := saveTestPlatform(t, m)
	if err := m.Connect(ctx, id); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	m.Disconnect(ctx, id)
	if _, err := m.GetInterfaceInfo(id); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after disconnect, got %v", err)
	}

	// Креды сохранились
	if _, err := store.Get(ctx, id); err != nil {
		t.Errorf("credentials must survive disconnect: %v", err)
	}

	// Повторный Disconnect безопасен
	m.Disconnect(ctx, id)

	if err := m.DeletePlatform(ctx, id); err != nil {
		t.Fatalf("DeletePlatform: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, repository.ErrCredentialNotFound) {
		t.Error("credentials must be removed on delete")
	}
	if err := m.DeletePlatform(ctx, id); !errors.Is(err, ErrPlatformNotFound) {
		t.Errorf("expected ErrPlatformNotFound on second delete, got %v", err)
	}

	found := map[string]bool{}
	for _, e := range broadcaster.events {
		found[e] = true
	}
	for _, want := range []string{"added", "connected", "disconnected", "deleted"} {
		if !found[want] {
			t.Errorf("missing %q platform event, got %v", want, broadcaster.events)
		}
	}
}

func TestListPlatforms(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	id := saveTestPlatform(t, m)
	m.AddPlatform(ctx, "Test Broker", loginURL)
	if err := m.Connect(ctx, id); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	infos, err := m.ListPlatforms(ctx)
	if err != nil {
		t.Fatalf("ListPlatforms: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("platforms = %d, expected 1", len(infos))
	}
	info := infos[0]
	if !info.IsConnected {
		t.Error("platform must be reported as connected")
	}
	if info.Username != "trader@example.com" {
		t.Errorf("Username = %q", info.Username)
	}
}

func TestReanalyzeInterface(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]string{loginURL: loginPageHTML})
	ctx := context.Background()

	m.AddPlatform(ctx, "Test Broker", loginURL)
	id := saveTestPlatform(t, m)

	if _, err := m.ReanalyzeInterface(ctx, id); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}

	if err := m.Connect(ctx, id); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	analysis, err := m.ReanalyzeInterface(ctx, id)
	if err != nil {
		t.Fatalf("ReanalyzeInterface: %v", err)
	}
	if analysis.IsEmpty() {
		t.Error("expected non-empty analysis")
	}
}

func TestTwoFALifecycle(t *testing.T) {
	m, store, _ := newTestManager(t, nil)
	ctx := context.Background()

	id := saveTestPlatform(t, m)

	setup, err := m.SetupTOTP(ctx, id)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	if setup.Secret == "" || setup.QRCodeDataURI == "" {
		t.Fatal("setup must include secret and QR code")
	}
	if len(setup.BackupCodes) != totp.BackupCodeCount {
		t.Errorf("backup codes = %d, expected %d", len(setup.BackupCodes), totp.BackupCodeCount)
	}

	// До верификации 2FA выключена
	cred, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if cred.TwoFA.Enabled {
		t.Error("2FA must stay disabled until verified")
	}

	// Неверный код
	if err := m.VerifyTwoFA(ctx, id, "000000"); !errors.Is(err, ErrInvalidTwoFACode) {
		t.Errorf("expected ErrInvalidTwoFACode, got %v", err)
	}

	// Верный код включает 2FA
	code, err := totp.GenerateCode(setup.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.VerifyTwoFA(ctx, id, code); err != nil {
		t.Fatalf("VerifyTwoFA: %v", err)
	}

	cred, err = store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !cred.TwoFA.Enabled {
		t.Error("2FA must be enabled after verification")
	}

	// Резервный код одноразовый
	backup := setup.BackupCodes[0]
	if err := m.VerifyTwoFA(ctx, id, backup); err != nil {
		t.Fatalf("backup code rejected: %v", err)
	}
	if err := m.VerifyTwoFA(ctx, id, backup); !errors.Is(err, ErrInvalidTwoFACode) {
		t.Errorf("used backup code must be rejected, got %v", err)
	}

	// Перегенерация заменяет комплект
	codes, err := m.RegenerateBackupCodes(ctx, id)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(codes) != totp.BackupCodeCount {
		t.Errorf("regenerated codes = %d, expected %d", len(codes), totp.BackupCodeCount)
	}
}

func TestVerifyTwoFANotConfigured(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	id := saveTestPlatform(t, m)

	if err := m.VerifyTwoFA(context.Background(), id, "123456"); !errors.Is(err, ErrTwoFANotConfigured) {
		t.Errorf("expected ErrTwoFANotConfigured, got %v", err)
	}
}
