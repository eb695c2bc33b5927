package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// KeySize - размер ключа AES-256 в байтах
const KeySize = 32

// SecurityManager шифрует и расшифровывает чувствительные поля учетных данных
// (пароли, API ключи, TOTP секреты) перед записью в хранилище.
//
// Ключ генерируется один раз и хранится в локальном key-файле без ротации
// (см. LoadOrCreateKey).
type SecurityManager struct {
	key []byte
}

// NewSecurityManager создает менеджер с заданным ключом
func NewSecurityManager(key []byte) (*SecurityManager, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &SecurityManager{key: k}, nil
}

// Encrypt шифрует поле учетных данных
func (s *SecurityManager) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, s.key)
}

// Decrypt расшифровывает поле учетных данных
func (s *SecurityManager) Decrypt(ciphertext string) (string, error) {
	return Decrypt(ciphertext, s.key)
}

// Encrypt шифрует plaintext с использованием AES-256-GCM.
// Nonce генерируется случайно и кладется в начало ciphertext,
// результат кодируется в base64 для безопасного хранения.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// GCM добавляет аутентификационный тег автоматически
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает base64-encoded ciphertext с использованием AES-256-GCM.
//
// Расшифровка чужим ключом возвращает ErrDecryptionFailed (ошибка
// аутентификации GCM) - отличимую от успешной расшифровки и от ошибок формата.
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeyLength
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertextData := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertextData, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey генерирует криптографически стойкий случайный ключ (32 байта)
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
