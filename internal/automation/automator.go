package automation

import (
	"time"

	"go.uber.org/zap"
)

// Таймауты браузерных операций по умолчанию
const (
	DefaultNavTimeout  = 30 * time.Second
	DefaultStepTimeout = 10 * time.Second
)

// Automator исполняет сценарии против страницы платформы:
// распознавание формы логина, вход, анализ торгового интерфейса,
// исполнение и закрытие сделок. Сам браузер ему не принадлежит -
// страницу дает вызывающий (менеджер подключений).
type Automator struct {
	log         *zap.Logger
	navTimeout  time.Duration
	stepTimeout time.Duration
	now         func() time.Time
}

// Option настраивает Automator
type Option func(*Automator)

// WithNavTimeout задает таймаут навигации
func WithNavTimeout(d time.Duration) Option {
	return func(a *Automator) { a.navTimeout = d }
}

// WithStepTimeout задает таймаут ожидания отдельного элемента
func WithStepTimeout(d time.Duration) Option {
	return func(a *Automator) { a.stepTimeout = d }
}

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(a *Automator) { a.now = now }
}

// New создает Automator с дефолтными таймаутами
func New(log *zap.Logger, opts ...Option) *Automator {
	a := &Automator{
		log:         log,
		navTimeout:  DefaultNavTimeout,
		stepTimeout: DefaultStepTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
