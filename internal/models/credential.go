package models

import "time"

// AuthMethod - метод двухфакторной аутентификации платформы
type AuthMethod string

// Поддерживаемые методы 2FA
const (
	AuthMethodNone    AuthMethod = "none"
	AuthMethodSMS     AuthMethod = "sms"
	AuthMethodTOTP    AuthMethod = "totp"
	AuthMethodEmail   AuthMethod = "email"
	AuthMethodYubikey AuthMethod = "yubikey"
	AuthMethodPush    AuthMethod = "push"
)

// IsValid проверяет, что метод 2FA известен системе
func (m AuthMethod) IsValid() bool {
	switch m {
	case AuthMethodNone, AuthMethodSMS, AuthMethodTOTP, AuthMethodEmail, AuthMethodYubikey, AuthMethodPush:
		return true
	}
	return false
}

// TwoFactorConfig - настройки 2FA, встроенные в учетные данные платформы.
// Жизненный цикл привязан к родительскому PlatformCredential.
type TwoFactorConfig struct {
	Enabled     bool       `json:"enabled"`
	Method      AuthMethod `json:"method"`
	TOTPSecret  string     `json:"totp_secret,omitempty"`
	SMSNumber   string     `json:"sms_number,omitempty"`
	Email       string     `json:"email,omitempty"`
	BackupCodes []string   `json:"backup_codes,omitempty"`
}

// PlatformCredential - учетные данные одной внешней торговой платформы.
//
// Владелец - PlatformConnectionManager. Чувствительные поля (username,
// password, api_key, api_secret, totp_secret, sms_number, email, backup_codes)
// шифруются по отдельности перед записью в хранилище и расшифровываются
// при загрузке. В памяти структура всегда содержит открытые значения.
type PlatformCredential struct {
	PlatformID   string           `json:"platform_id"`
	PlatformName string           `json:"platform_name"`
	LoginURL     string           `json:"login_url"`
	Username     string           `json:"username"`
	Password     string           `json:"password"`
	APIKey       string           `json:"api_key,omitempty"`
	APISecret    string           `json:"api_secret,omitempty"`
	TwoFA        *TwoFactorConfig `json:"two_fa,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	LastUsed     time.Time        `json:"last_used,omitempty"`
	IsActive     bool             `json:"is_active"`
}

// PlatformInfo - публичное представление платформы для API (без секретов)
type PlatformInfo struct {
	PlatformID   string    `json:"platform_id"`
	PlatformName string    `json:"platform_name"`
	LoginURL     string    `json:"login_url"`
	Username     string    `json:"username"`
	IsConnected  bool      `json:"is_connected"`
	TwoFAEnabled bool      `json:"two_fa_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used,omitempty"`
}
