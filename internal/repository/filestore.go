package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradebridge/internal/models"
	"tradebridge/pkg/crypto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============================================================
// Файловое хранилище учетных данных
// ============================================================
//
// Один JSON-файл со всеми платформами. Чувствительные поля
// зашифрованы пофилево: файл читаем глазами (видно какие платформы
// сохранены), но креды без ключа бесполезны.

// encryptedTwoFA - 2FA блок на диске
type encryptedTwoFA struct {
	Enabled     bool     `json:"enabled"`
	Method      string   `json:"method"`
	TOTPSecret  string   `json:"totp_secret,omitempty"`
	SMSNumber   string   `json:"sms_number,omitempty"`
	Email       string   `json:"email,omitempty"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// encryptedCredential - запись платформы на диске
type encryptedCredential struct {
	PlatformID   string          `json:"platform_id"`
	PlatformName string          `json:"platform_name"`
	LoginURL     string          `json:"login_url"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	APIKey       string          `json:"api_key,omitempty"`
	APISecret    string          `json:"api_secret,omitempty"`
	TwoFA        *encryptedTwoFA `json:"two_fa,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUsed     time.Time       `json:"last_used"`
	IsActive     bool            `json:"is_active"`
}

// FileStore - CredentialStore поверх одного JSON-файла
type FileStore struct {
	mu       sync.Mutex
	path     string
	security *crypto.SecurityManager
	records  map[string]encryptedCredential
}

// NewFileStore открывает (или создает при первом Put) файловое хранилище
func NewFileStore(path string, security *crypto.SecurityManager) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		security: security,
		records:  make(map[string]encryptedCredential),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credential file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("parse credential file %s: %w", s.path, err)
	}
	return nil
}

// flush пишет файл атомарно: temp + rename, чтобы сбой посреди записи
// не оставил полусохраненный файл с кредами
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Get возвращает расшифрованные учетные данные платформы
func (s *FileStore) Get(_ context.Context, platformID string) (*models.PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[platformID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return decryptCredential(s.security, &rec)
}

// Put шифрует и сохраняет учетные данные
func (s *FileStore) Put(_ context.Context, cred *models.PlatformCredential) error {
	rec, err := encryptCredential(s.security, cred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[cred.PlatformID] = *rec
	if err := s.flush(); err != nil {
		delete(s.records, cred.PlatformID)
		return err
	}
	return nil
}

// Delete удаляет учетные данные платформы
func (s *FileStore) Delete(_ context.Context, platformID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[platformID]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(s.records, platformID)
	if err := s.flush(); err != nil {
		s.records[platformID] = rec
		return err
	}
	return nil
}

// List возвращает все учетные данные, расшифрованные
func (s *FileStore) List(_ context.Context) ([]*models.PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds := make([]*models.PlatformCredential, 0, len(s.records))
	for id := range s.records {
		rec := s.records[id]
		cred, err := decryptCredential(s.security, &rec)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", id, err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Close у файлового хранилища ресурсов не держит
func (s *FileStore) Close() error { return nil }

// encryptCredential шифрует чувствительные поля перед персистом.
// Общий для всех бэкендов: формат шифртекста одинаков.
func encryptCredential(security *crypto.SecurityManager, cred *models.PlatformCredential) (*encryptedCredential, error) {
	username, err := security.Encrypt(cred.Username)
	if err != nil {
		return nil, fmt.Errorf("encrypt username: %w", err)
	}
	password, err := security.Encrypt(cred.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}

	rec := &encryptedCredential{
		PlatformID:   cred.PlatformID,
		PlatformName: cred.PlatformName,
		LoginURL:     cred.LoginURL,
		Username:     username,
		Password:     password,
		CreatedAt:    cred.CreatedAt,
		LastUsed:     cred.LastUsed,
		IsActive:     cred.IsActive,
	}

	if cred.APIKey != "" {
		if rec.APIKey, err = security.Encrypt(cred.APIKey); err != nil {
			return nil, fmt.Errorf("encrypt api key: %w", err)
		}
	}
	if cred.APISecret != "" {
		if rec.APISecret, err = security.Encrypt(cred.APISecret); err != nil {
			return nil, fmt.Errorf("encrypt api secret: %w", err)
		}
	}

	if cred.TwoFA != nil {
		enc := &encryptedTwoFA{
			Enabled: cred.TwoFA.Enabled,
			Method:  string(cred.TwoFA.Method),
		}
		if cred.TwoFA.TOTPSecret != "" {
			if enc.TOTPSecret, err = security.Encrypt(cred.TwoFA.TOTPSecret); err != nil {
				return nil, fmt.Errorf("encrypt totp secret: %w", err)
			}
		}
		if cred.TwoFA.SMSNumber != "" {
			if enc.SMSNumber, err = security.Encrypt(cred.TwoFA.SMSNumber); err != nil {
				return nil, fmt.Errorf("encrypt sms number: %w", err)
			}
		}
		if cred.TwoFA.Email != "" {
			if enc.Email, err = security.Encrypt(cred.TwoFA.Email); err != nil {
				return nil, fmt.Errorf("encrypt email: %w", err)
			}
		}
		for _, code := range cred.TwoFA.BackupCodes {
			encCode, err := security.Encrypt(code)
			if err != nil {
				return nil, fmt.Errorf("encrypt backup code: %w", err)
			}
			enc.BackupCodes = append(enc.BackupCodes, encCode)
		}
		rec.TwoFA = enc
	}

	return rec, nil
}

func decryptCredential(security *crypto.SecurityManager, rec *encryptedCredential) (*models.PlatformCredential, error) {
	username, err := security.Decrypt(rec.Username)
	if err != nil {
		return nil, fmt.Errorf("decrypt username: %w", err)
	}
	password, err := security.Decrypt(rec.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}

	cred := &models.PlatformCredential{
		PlatformID:   rec.PlatformID,
		PlatformName: rec.PlatformName,
		LoginURL:     rec.LoginURL,
		Username:     username,
		Password:     password,
		CreatedAt:    rec.CreatedAt,
		LastUsed:     rec.LastUsed,
		IsActive:     rec.IsActive,
	}

	if rec.APIKey != "" {
		if cred.APIKey, err = security.Decrypt(rec.APIKey); err != nil {
			return nil, fmt.Errorf("decrypt api key: %w", err)
		}
	}
	if rec.APISecret != "" {
		if cred.APISecret, err = security.Decrypt(rec.APISecret); err != nil {
			return nil, fmt.Errorf("decrypt api secret: %w", err)
		}
	}

	if rec.TwoFA != nil {
		twoFA := &models.TwoFactorConfig{
			Enabled: rec.TwoFA.Enabled,
			Method:  models.AuthMethod(rec.TwoFA.Method),
		}
		if rec.TwoFA.TOTPSecret != "" {
			if twoFA.TOTPSecret, err = security.Decrypt(rec.TwoFA.TOTPSecret); err != nil {
				return nil, fmt.Errorf("decrypt totp secret: %w", err)
			}
		}
		if rec.TwoFA.SMSNumber != "" {
			if twoFA.SMSNumber, err = security.Decrypt(rec.TwoFA.SMSNumber); err != nil {
				return nil, fmt.Errorf("decrypt sms number: %w", err)
			}
		}
		if rec.TwoFA.Email != "" {
			if twoFA.Email, err = security.Decrypt(rec.TwoFA.Email); err != nil {
				return nil, fmt.Errorf("decrypt email: %w", err)
			}
		}
		for _, encCode := range rec.TwoFA.BackupCodes {
			code, err := security.Decrypt(encCode)
			if err != nil {
				return nil, fmt.Errorf("decrypt backup code: %w", err)
			}
			twoFA.BackupCodes = append(twoFA.BackupCodes, code)
		}
		cred.TwoFA = twoFA
	}

	return cred, nil
}
