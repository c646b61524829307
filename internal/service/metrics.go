package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики слоя интеграции
// ============================================================

// ConnectAttempts - попытки подключения к площадкам по исходу
var ConnectAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokerlink",
		Subsystem: "connections",
		Name:      "connect_attempts_total",
		Help:      "Connect attempts by venue and outcome",
	},
	[]string{"venue", "outcome"},
)

// Disconnects - отключения по площадкам
var Disconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokerlink",
		Subsystem: "connections",
		Name:      "disconnects_total",
		Help:      "Disconnects by venue",
	},
	[]string{"venue"},
)

// SyncsTotal - синхронизации по площадке и исходу
var SyncsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokerlink",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync runs by venue and outcome",
	},
	[]string{"venue", "outcome"},
)

// SyncDuration - длительность полного цикла синхронизации
var SyncDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "brokerlink",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Full sync cycle duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"venue"},
)

// TokenRefreshes - обновления OAuth2 токенов
var TokenRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "brokerlink",
		Subsystem: "sync",
		Name:      "token_refreshes_total",
		Help:      "OAuth2 token refreshes by venue and outcome",
	},
	[]string{"venue", "outcome"},
)

// ActiveConnections - текущее количество активных подключений
var ActiveConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "brokerlink",
		Subsystem: "connections",
		Name:      "active",
		Help:      "Number of currently connected platform connections",
	},
)
