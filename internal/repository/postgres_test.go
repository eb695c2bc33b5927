package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

// ============================================================
// PostgresStore Tests
// ============================================================

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, newTestSecurity(t)), mock
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	username, err := store.security.Encrypt("trader@example.com")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	password, err := store.security.Encrypt("s3cret-pass")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"platform_id", "platform_name", "login_url", "username", "password",
		"api_key", "api_secret", "two_fa", "created_at", "last_used", "is_active",
	}).AddRow(
		"tradelocker_1700000000", "TradeLocker", "https://demo.tradelocker.com/login",
		username, password, "", "", nil, created, nil, true,
	)

	mock.ExpectQuery(`SELECT .+ FROM platform_credentials`).
		WithArgs("tradelocker_1700000000").
		WillReturnRows(rows)

	cred, err := store.Get(ctx, "tradelocker_1700000000")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cred.Username != "trader@example.com" {
		t.Errorf("Username = %q, want trader@example.com", cred.Username)
	}
	if cred.Password != "s3cret-pass" {
		t.Errorf("Password = %q, want s3cret-pass", cred.Password)
	}
	if !cred.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", cred.CreatedAt, created)
	}
	if !cred.LastUsed.IsZero() {
		t.Errorf("LastUsed = %v, want zero", cred.LastUsed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM platform_credentials`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}))

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestPostgresStorePut(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO platform_credentials`).
		WithArgs(
			"tradelocker_1700000000",
			"TradeLocker",
			"https://demo.tradelocker.com/login",
			sqlmock.AnyArg(), // username (шифртекст недетерминирован)
			sqlmock.AnyArg(), // password
			sqlmock.AnyArg(), // api_key
			sqlmock.AnyArg(), // api_secret
			sqlmock.AnyArg(), // two_fa
			sqlmock.AnyArg(), // created_at
			nil,              // last_used
			true,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), testCredential()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePutUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO platform_credentials`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Put(context.Background(), testCredential())
	if !errors.Is(err, ErrCredentialExists) {
		t.Errorf("expected ErrCredentialExists, got %v", err)
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		expectError error
	}{
		{name: "success", affected: 1, expectError: nil},
		{name: "not found", affected: 0, expectError: ErrCredentialNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectExec(`DELETE FROM platform_credentials`).
				WithArgs("tradelocker_1700000000").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := store.Delete(context.Background(), "tradelocker_1700000000")
			if !errors.Is(err, tt.expectError) {
				t.Errorf("Delete error = %v, want %v", err, tt.expectError)
			}
		})
	}
}

func TestPostgresStoreList(t *testing.T) {
	store, mock := newMockStore(t)

	username, err := store.security.Encrypt("trader@example.com")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	password, err := store.security.Encrypt("s3cret-pass")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	twoFA, err := json.Marshal(&encryptedTwoFA{Enabled: true, Method: "totp"})
	if err != nil {
		t.Fatalf("marshal two_fa failed: %v", err)
	}

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lastUsed := created.Add(2 * time.Hour)
	rows := sqlmock.NewRows([]string{
		"platform_id", "platform_name", "login_url", "username", "password",
		"api_key", "api_secret", "two_fa", "created_at", "last_used", "is_active",
	}).AddRow(
		"tradelocker_1700000000", "TradeLocker", "https://demo.tradelocker.com/login",
		username, password, "", "", twoFA, created, lastUsed, true,
	).AddRow(
		"metatrader5_1700000100", "MetaTrader 5", "https://mt5.example.com/login",
		username, password, "", "", nil, created.Add(time.Minute), nil, true,
	)

	mock.ExpectQuery(`SELECT .+ FROM platform_credentials`).WillReturnRows(rows)

	creds, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("List returned %d credentials, want 2", len(creds))
	}

	first := creds[0]
	if first.TwoFA == nil || !first.TwoFA.Enabled {
		t.Error("first credential should have 2FA enabled")
	}
	if !first.LastUsed.Equal(lastUsed) {
		t.Errorf("LastUsed = %v, want %v", first.LastUsed, lastUsed)
	}
	if creds[1].TwoFA != nil {
		t.Error("second credential should have no 2FA")
	}
}
