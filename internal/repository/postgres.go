package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tradebridge/internal/models"
	"tradebridge/pkg/crypto"
)

// ============================================================
// PostgreSQL хранилище учетных данных
// ============================================================
//
// Для multi-instance развертываний: файловое хранилище не шарится
// между репликами. Схема:
//
//   CREATE TABLE platform_credentials (
//       platform_id   TEXT PRIMARY KEY,
//       platform_name TEXT NOT NULL,
//       login_url     TEXT NOT NULL,
//       username      TEXT NOT NULL,
//       password      TEXT NOT NULL,
//       api_key       TEXT NOT NULL DEFAULT '',
//       api_secret    TEXT NOT NULL DEFAULT '',
//       two_fa        JSONB,
//       created_at    TIMESTAMPTZ NOT NULL,
//       last_used     TIMESTAMPTZ,
//       is_active     BOOLEAN NOT NULL DEFAULT TRUE
//   );
//
// Чувствительные колонки хранят шифртекст, как и в файловом хранилище.

// PostgresStore - CredentialStore поверх PostgreSQL
type PostgresStore struct {
	db       *sql.DB
	security *crypto.SecurityManager
}

// NewPostgresStore создает хранилище поверх готового подключения
func NewPostgresStore(db *sql.DB, security *crypto.SecurityManager) *PostgresStore {
	return &PostgresStore{db: db, security: security}
}

// OpenPostgresStore открывает подключение по DSN и проверяет его
func OpenPostgresStore(ctx context.Context, dsn string, security *crypto.SecurityManager) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, security), nil
}

// Get возвращает расшифрованные учетные данные платформы
func (s *PostgresStore) Get(ctx context.Context, platformID string) (*models.PlatformCredential, error) {
	query := `
		SELECT platform_id, platform_name, login_url, username, password, api_key, api_secret, two_fa, created_at, last_used, is_active
		FROM platform_credentials
		WHERE platform_id = $1`

	rec, err := s.scanRow(s.db.QueryRowContext(ctx, query, platformID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return decryptCredential(s.security, rec)
}

// Put сохраняет учетные данные (insert либо update)
func (s *PostgresStore) Put(ctx context.Context, cred *models.PlatformCredential) error {
	rec, err := encryptCredential(s.security, cred)
	if err != nil {
		return err
	}

	var twoFA []byte
	if rec.TwoFA != nil {
		if twoFA, err = json.Marshal(rec.TwoFA); err != nil {
			return fmt.Errorf("marshal two_fa: %w", err)
		}
	}

	query := `
		INSERT INTO platform_credentials (platform_id, platform_name, login_url, username, password, api_key, api_secret, two_fa, created_at, last_used, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (platform_id) DO UPDATE SET
			platform_name = EXCLUDED.platform_name,
			login_url = EXCLUDED.login_url,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			two_fa = EXCLUDED.two_fa,
			last_used = EXCLUDED.last_used,
			is_active = EXCLUDED.is_active`

	_, err = s.db.ExecContext(ctx, query,
		rec.PlatformID,
		rec.PlatformName,
		rec.LoginURL,
		rec.Username,
		rec.Password,
		rec.APIKey,
		rec.APISecret,
		nullableJSON(twoFA),
		rec.CreatedAt,
		nullableTime(rec.LastUsed),
		rec.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCredentialExists
		}
		return err
	}
	return nil
}

// Delete удаляет учетные данные платформы
func (s *PostgresStore) Delete(ctx context.Context, platformID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM platform_credentials WHERE platform_id = $1`, platformID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// List возвращает все учетные данные
func (s *PostgresStore) List(ctx context.Context) ([]*models.PlatformCredential, error) {
	query := `
		SELECT platform_id, platform_name, login_url, username, password, api_key, api_secret, two_fa, created_at, last_used, is_active
		FROM platform_credentials
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.PlatformCredential
	for rows.Next() {
		rec, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		cred, err := decryptCredential(s.security, rec)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Close закрывает подключение к базе
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanRow(row rowScanner) (*encryptedCredential, error) {
	rec := &encryptedCredential{}
	var twoFA []byte
	var lastUsed sql.NullTime

	err := row.Scan(
		&rec.PlatformID,
		&rec.PlatformName,
		&rec.LoginURL,
		&rec.Username,
		&rec.Password,
		&rec.APIKey,
		&rec.APISecret,
		&twoFA,
		&rec.CreatedAt,
		&lastUsed,
		&rec.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		rec.LastUsed = lastUsed.Time
	}
	if len(twoFA) > 0 {
		rec.TwoFA = &encryptedTwoFA{}
		if err := json.Unmarshal(twoFA, rec.TwoFA); err != nil {
			return nil, fmt.Errorf("parse two_fa for %s: %w", rec.PlatformID, err)
		}
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
