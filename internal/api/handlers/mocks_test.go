package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradebridge/internal/manager"
	"tradebridge/internal/models"
	"tradebridge/pkg/totp"
)

// ErrMockInternal имитирует внутреннюю ошибку менеджера
var ErrMockInternal = errors.New("mock internal error")

// ============ Mock Platform Manager ============

// MockPlatformManager - стейтфул мок для PlatformManager
type MockPlatformManager struct {
	mu sync.Mutex

	platforms map[string]*models.PlatformInfo
	connected map[string]bool
	analyses  map[string]*models.InterfaceAnalysis
	twoFA     map[string]bool // настроена ли 2FA

	detectedForm *models.DetectedForm
	tradeResult  *models.TradeResult

	// Ошибки для подстановки в конкретные операции
	saveErr    error
	connectErr error
	listErr    error
	tradeErr   error
	verifyErr  error

	nextID int

	// Журнал вызовов для ассертов
	ExecutedOrders []*models.TradeOrder
	ClosedSymbols  []string
}

// NewMockPlatformManager создает новый мок менеджера платформ
func NewMockPlatformManager() *MockPlatformManager {
	return &MockPlatformManager{
		platforms: make(map[string]*models.PlatformInfo),
		connected: make(map[string]bool),
		analyses:  make(map[string]*models.InterfaceAnalysis),
		twoFA:     make(map[string]bool),
		detectedForm: &models.DetectedForm{
			LoginFields: []models.LoginField{
				{Name: "username", Selector: `input[name="username"]`, Type: models.FieldTypeText},
				{Name: "password", Selector: `input[name="password"]`, Type: models.FieldTypePassword},
			},
			SubmitButton: `button[type="submit"]`,
		},
		tradeResult: &models.TradeResult{
			Success:   true,
			OrderID:   "ORD_TEST_1",
			Message:   "Order executed",
			Timestamp: time.Now(),
		},
		nextID: 1,
	}
}

// AddTestPlatform помещает платформу в мок и возвращает ее ID
func (m *MockPlatformManager) AddTestPlatform(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "platform_" + name
	m.platforms[id] = &models.PlatformInfo{
		PlatformID:   id,
		PlatformName: name,
		LoginURL:     "https://" + name + ".example/login",
		Username:     "trader",
		CreatedAt:    time.Now(),
	}
	return id
}

func (m *MockPlatformManager) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case "save":
		m.saveErr = err
	case "connect":
		m.connectErr = err
	case "list":
		m.listErr = err
	case "trade":
		m.tradeErr = err
	case "verify":
		m.verifyErr = err
	}
}

func (m *MockPlatformManager) SetTradeResult(result *models.TradeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeResult = result
}

func (m *MockPlatformManager) AddPlatform(ctx context.Context, name, loginURL string) *models.DetectedForm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectedForm
}

func (m *MockPlatformManager) SaveCredentials(ctx context.Context, cred *models.PlatformCredential) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return "", m.saveErr
	}

	id := "platform_" + cred.PlatformName
	m.platforms[id] = &models.PlatformInfo{
		PlatformID:   id,
		PlatformName: cred.PlatformName,
		LoginURL:     cred.LoginURL,
		Username:     cred.Username,
		CreatedAt:    time.Now(),
	}
	m.nextID++
	return id, nil
}

func (m *MockPlatformManager) Connect(ctx context.Context, platformID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectErr != nil {
		return m.connectErr
	}
	if _, ok := m.platforms[platformID]; !ok {
		return manager.ErrPlatformNotFound
	}
	m.connected[platformID] = true
	m.analyses[platformID] = &models.InterfaceAnalysis{
		BuyElements: []models.ElementInfo{{Selector: ".buy-button", Text: "Buy"}},
		AnalyzedAt:  time.Now(),
	}
	return nil
}

func (m *MockPlatformManager) Disconnect(ctx context.Context, platformID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connected, platformID)
	delete(m.analyses, platformID)
}

func (m *MockPlatformManager) DeletePlatform(ctx context.Context, platformID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.platforms[platformID]; !ok {
		return manager.ErrPlatformNotFound
	}
	delete(m.platforms, platformID)
	delete(m.connected, platformID)
	return nil
}

func (m *MockPlatformManager) ListPlatforms(ctx context.Context) ([]*models.PlatformInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.PlatformInfo, 0, len(m.platforms))
	for _, info := range m.platforms {
		clone := *info
		clone.IsConnected = m.connected[info.PlatformID]
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MockPlatformManager) GetPlatform(ctx context.Context, platformID string) (*models.PlatformInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.platforms[platformID]
	if !ok {
		return nil, manager.ErrPlatformNotFound
	}
	clone := *info
	clone.IsConnected = m.connected[platformID]
	return &clone, nil
}

func (m *MockPlatformManager) ExecuteTrade(ctx context.Context, platformID string, order *models.TradeOrder) (*models.TradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tradeErr != nil {
		return nil, m.tradeErr
	}
	if _, ok := m.platforms[platformID]; !ok {
		return nil, manager.ErrPlatformNotFound
	}
	m.ExecutedOrders = append(m.ExecutedOrders, order)
	return m.tradeResult, nil
}

func (m *MockPlatformManager) ClosePosition(ctx context.Context, platformID, symbol string) (*models.TradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tradeErr != nil {
		return nil, m.tradeErr
	}
	if _, ok := m.platforms[platformID]; !ok {
		return nil, manager.ErrPlatformNotFound
	}
	m.ClosedSymbols = append(m.ClosedSymbols, symbol)
	return m.tradeResult, nil
}

func (m *MockPlatformManager) GetInterfaceInfo(platformID string) (*models.InterfaceAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	analysis, ok := m.analyses[platformID]
	if !ok {
		return nil, manager.ErrNotConnected
	}
	return analysis, nil
}

func (m *MockPlatformManager) ReanalyzeInterface(ctx context.Context, platformID string) (*models.InterfaceAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	analysis, ok := m.analyses[platformID]
	if !ok {
		return nil, manager.ErrNotConnected
	}
	analysis.AnalyzedAt = time.Now()
	return analysis, nil
}

func (m *MockPlatformManager) SetupTOTP(ctx context.Context, platformID string) (*totp.Setup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.platforms[platformID]; !ok {
		return nil, manager.ErrPlatformNotFound
	}
	m.twoFA[platformID] = true
	return &totp.Setup{
		Secret:      "JBSWY3DPEHPK3PXP",
		URI:         "otpauth://totp/TradeBridge:trader?secret=JBSWY3DPEHPK3PXP",
		BackupCodes: []string{"A1B2C3D4", "E5F6A7B8"},
	}, nil
}

func (m *MockPlatformManager) VerifyTwoFA(ctx context.Context, platformID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.verifyErr != nil {
		return m.verifyErr
	}
	if _, ok := m.platforms[platformID]; !ok {
		return manager.ErrPlatformNotFound
	}
	if !m.twoFA[platformID] {
		return manager.ErrTwoFANotConfigured
	}
	if code != "123456" {
		return manager.ErrInvalidTwoFACode
	}
	return nil
}

func (m *MockPlatformManager) RegenerateBackupCodes(ctx context.Context, platformID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.platforms[platformID]; !ok {
		return nil, manager.ErrPlatformNotFound
	}
	if !m.twoFA[platformID] {
		return nil, manager.ErrTwoFANotConfigured
	}
	return []string{"11112222", "33334444", "55556666"}, nil
}
