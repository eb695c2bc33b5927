package manager

import (
	"sync"

	"tradebridge/internal/browser"
	"tradebridge/internal/models"
	"tradebridge/pkg/ratelimit"
)

// Лимит торговых операций на платформу: браузерный UI не переживает
// шквал кликов, коммерческие платформы к тому же банят за автокликер
const (
	tradesPerSecond = 1.0
	tradeBurst      = 3.0
)

// session - живое браузерное подключение к одной платформе.
//
// mu сериализует операции внутри одной платформы: страница одна,
// параллельные ExecuteTrade на ней перемешали бы заполнение формы.
// Операции на разных платформах идут параллельно.
type session struct {
	mu       sync.Mutex
	page     browser.Page
	analysis *models.InterfaceAnalysis
	limiter  *ratelimit.RateLimiter
}

func newSession() *session {
	return &session{
		limiter: ratelimit.NewRateLimiter(tradesPerSecond, tradeBurst),
	}
}

// connected сообщает, есть ли живая страница. Вызывать под s.mu.
func (s *session) connected() bool {
	return s.page != nil
}

// drop закрывает страницу и сбрасывает кэш анализа. Вызывать под s.mu.
func (s *session) drop() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	s.analysis = nil
}
