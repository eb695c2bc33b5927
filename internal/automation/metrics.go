package automation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики браузерной автоматизации
// ============================================================
//
// Браузерные сценарии медленные и хрупкие, поэтому наблюдаемость
// обязательна: доля проваленных входов и сделок - первый сигнал
// о том, что платформа поменяла верстку.

// LoginAttempts - попытки входа по результату
var LoginAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebridge",
		Subsystem: "automation",
		Name:      "login_attempts_total",
		Help:      "Total number of platform login attempts",
	},
	[]string{"result"}, // success, failure
)

// TradesExecuted - исполненные через браузер сделки
var TradesExecuted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebridge",
		Subsystem: "automation",
		Name:      "trades_total",
		Help:      "Total number of browser-executed trade operations",
	},
	[]string{"action", "result"}, // action: buy, sell, close
)

// TwoFAHandled - обработанные прохождения второго фактора
var TwoFAHandled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebridge",
		Subsystem: "automation",
		Name:      "two_fa_handled_total",
		Help:      "Total number of 2FA challenges handled",
	},
	[]string{"method"}, // totp, sms, email
)

// AnalysisDuration - длительность анализа торгового интерфейса.
// Buckets под браузерные операции: от сотен миллисекунд до минуты.
var AnalysisDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradebridge",
		Subsystem: "automation",
		Name:      "interface_analysis_duration_seconds",
		Help:      "Time to analyze a platform trading interface",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
)

// ============ Вспомогательные функции ============

func recordLogin(result string) {
	LoginAttempts.WithLabelValues(result).Inc()
}

func recordTrade(action, result string) {
	TradesExecuted.WithLabelValues(action, result).Inc()
}

func recordTwoFA(method string) {
	TwoFAHandled.WithLabelValues(method).Inc()
}

func startAnalysisTimer() *prometheus.Timer {
	return prometheus.NewTimer(AnalysisDuration)
}
