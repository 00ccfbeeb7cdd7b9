// Package metrics — счётчики Prometheus. Регистрируются через promauto в
// дефолтном реестре; отдаются наружу сервисом Server (если в конфиге задан
// адрес).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dota_fetch_requests_total",
			Help: "HTTP-запросы к внешним API (до ретраев)",
		},
		[]string{"api"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dota_fetch_retries_total",
			Help: "Повторные попытки после ошибок",
		},
		[]string{"api"},
	)

	FetchThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dota_fetch_throttled_total",
			Help: "Ответы 429 с ожиданием Retry-After",
		},
		[]string{"api"},
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dota_fetch_failures_total",
			Help: "Запросы, исчерпавшие все попытки",
		},
		[]string{"api"},
	)

	CacheCorrupt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_cache_corrupt_total",
			Help: "Файлы кэша, прочитанные как пустые из-за порчи",
		},
	)

	MatchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_match_cache_hits_total",
			Help: "Матчи, уже лежавшие в кэше на момент проверки",
		},
	)

	MatchesCached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_matches_cached_total",
			Help: "Сохранённые детали новых матчей",
		},
	)

	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dota_refresh_cycles_total",
			Help: "Завершённые циклы обновления кэша",
		},
		[]string{"kind"}, // full | incremental
	)

	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_sessions_opened_total",
			Help: "Открытые игровые сессии",
		},
	)

	SessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_sessions_closed_total",
			Help: "Закрытые игровые сессии",
		},
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dota_notifications_sent_total",
			Help: "Сообщения, отправленные в чат",
		},
	)
)
