package totp

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Ошибки генерации/проверки TOTP
var (
	ErrEmptySecret = errors.New("totp secret is empty")
	ErrEmptyCode   = errors.New("totp code is empty")
)

// ValidWindow - допуск проверки кода в шагах по 30 секунд в обе стороны.
// Код, сгенерированный до двух шагов назад или вперед (±60s), принимается.
const ValidWindow = 2

// BackupCodeCount - количество резервных кодов в комплекте настройки
const BackupCodeCount = 10

// Setup - результат настройки TOTP для новой платформы
type Setup struct {
	Secret        string   `json:"secret"`
	URI           string   `json:"uri"`
	QRCodeDataURI string   `json:"qr_code"`
	BackupCodes   []string `json:"backup_codes"`
}

// GenerateCode возвращает текущий 6-значный код для секрета (RFC 6238, шаг 30s)
func GenerateCode(secret string) (string, error) {
	return GenerateCodeAt(secret, time.Now())
}

// GenerateCodeAt возвращает код для секрета на указанный момент времени
func GenerateCodeAt(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	return totp.GenerateCode(normalizeSecret(secret), t)
}

// Verify проверяет код против секрета с допуском ValidWindow шагов.
// Невалидный или чужой код дает (false, nil); ошибка возвращается только
// при некорректном секрете.
func Verify(secret, code string) (bool, error) {
	return VerifyAt(secret, code, time.Now())
}

// VerifyAt проверяет код на указанный момент времени
func VerifyAt(secret, code string, t time.Time) (bool, error) {
	if secret == "" {
		return false, ErrEmptySecret
	}
	if code == "" {
		return false, ErrEmptyCode
	}
	// Код неверной длины (например, резервный код) - просто не TOTP
	if len(code) != otp.DigitsSix.Length() {
		return false, nil
	}

	return totp.ValidateCustom(code, normalizeSecret(secret), t, totp.ValidateOpts{
		Period:    30,
		Skew:      ValidWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateSetup создает новый TOTP секрет для платформы вместе с
// provisioning URI, QR-кодом (data URI, PNG) и резервными кодами.
func GenerateSetup(accountName, issuer string) (*Setup, error) {
	if accountName == "" {
		accountName = "trader"
	}
	if issuer == "" {
		issuer = "TradeBridge"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, err
	}

	qr, err := qrDataURI(key)
	if err != nil {
		return nil, err
	}

	codes, err := GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}

	return &Setup{
		Secret:        key.Secret(),
		URI:           key.URL(),
		QRCodeDataURI: qr,
		BackupCodes:   codes,
	}, nil
}

// GenerateBackupCodes возвращает count резервных кодов (8 hex символов, uppercase)
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = BackupCodeCount
	}

	codes := make([]string, 0, count)
	buf := make([]byte, 4)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return codes, nil
}

// qrDataURI рендерит provisioning URI ключа в PNG и кодирует как data URI
func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(256, 256)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// normalizeSecret приводит секрет к каноничному base32 виду.
// Пользователи часто вставляют секрет с пробелами и в нижнем регистре.
func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}
