package repository

import (
	"context"
	"errors"

	"tradebridge/internal/models"
)

// Ошибки хранилища учетных данных
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already exists")
)

// CredentialStore - хранилище учетных данных платформ.
//
// Реализации обязаны шифровать чувствительные поля (username, password,
// api-ключи, секреты 2FA) при записи и расшифровывать при чтении:
// наружу всегда отдается расшифрованная модель.
type CredentialStore interface {
	// Get возвращает учетные данные по идентификатору платформы
	Get(ctx context.Context, platformID string) (*models.PlatformCredential, error)

	// Put сохраняет учетные данные, перезаписывая существующие
	Put(ctx context.Context, cred *models.PlatformCredential) error

	// Delete удаляет учетные данные; ErrCredentialNotFound если их нет
	Delete(ctx context.Context, platformID string) error

	// List возвращает все сохраненные учетные данные
	List(ctx context.Context) ([]*models.PlatformCredential, error)

	// Close освобождает ресурсы хранилища
	Close() error
}
