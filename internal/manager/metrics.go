package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики менеджера платформ
var (
	// ConnectedPlatforms - количество платформ с живой браузерной сессией
	ConnectedPlatforms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradebridge",
		Subsystem: "manager",
		Name:      "connected_platforms",
		Help:      "Number of platforms with a live browser session",
	})

	// ConnectAttempts - попытки подключения к платформам
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradebridge",
		Subsystem: "manager",
		Name:      "connect_attempts_total",
		Help:      "Platform connect attempts by result",
	}, []string{"result"})

	// InterfaceSweeps - сброшенные по TTL кэши анализа интерфейса
	InterfaceSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradebridge",
		Subsystem: "manager",
		Name:      "interface_cache_evictions_total",
		Help:      "Interface analysis cache entries evicted by TTL",
	})
)

func recordConnect(success bool) {
	if success {
		ConnectAttempts.WithLabelValues("success").Inc()
	} else {
		ConnectAttempts.WithLabelValues("failure").Inc()
	}
}
