package middleware

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader - заголовок с ключом клиента.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth проверяет X-API-Key по bcrypt-хешу из конфигурации.
// Пустой хеш отключает аутентификацию (локальная разработка).
func APIKeyAuth(log *zap.Logger, keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}

		hash := []byte(keyHash)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"API key required","code":"UNAUTHORIZED"}`))
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
				log.Warn("Отклонен запрос с неверным API ключом",
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Invalid API key","code":"UNAUTHORIZED"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
