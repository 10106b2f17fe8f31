package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created against the payment gateway",
		},
		[]string{"currency"},
	)

	ordersOrphaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_orphaned_total",
			Help: "Gateway orders whose local record could not be persisted",
		},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Terminal order transitions by status and source",
		},
		[]string{"status", "source", "result"},
	)

	orderStatusConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_status_conflicts_total",
			Help: "Terminal updates rejected because the order already holds a different terminal status",
		},
	)

	webhookRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_rejections_total",
			Help: "Rejected gateway webhooks",
		},
		[]string{"reason"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	pollOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_poll_outcomes_total",
			Help: "Status polling runs by final outcome",
		},
		[]string{"outcome"},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "Whether the last Redis ping succeeded",
		},
	)

	redisPoolConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redis_pool_connections",
			Help: "Redis pool connections by state",
		},
		[]string{"state"},
	)
)

func TrackOrderCreated(currency string) {
	ordersCreated.WithLabelValues(currency).Inc()
}

func TrackOrderOrphaned() {
	ordersOrphaned.Inc()
}

func TrackTransition(status, source, result string) {
	orderTransitions.WithLabelValues(status, source, result).Inc()
}

func TrackStatusConflict() {
	orderStatusConflicts.Inc()
}

func TrackWebhookRejected(reason string) {
	webhookRejections.WithLabelValues(reason).Inc()
}

func TrackGatewayRequest(operation, outcome string, duration time.Duration) {
	gatewayRequestDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func TrackPollOutcome(outcome string) {
	pollOutcomes.WithLabelValues(outcome).Inc()
}

// Monitor samples Redis health into gauges while the server runs.
type Monitor struct {
	redis    *redis.Client
	interval time.Duration
	logger   *slog.Logger
}

func NewMonitor(redisClient *redis.Client, logger *slog.Logger) *Monitor {
	return &Monitor{
		redis:    redisClient,
		interval: 30 * time.Second,
		logger:   logger,
	}
}

// Run collects until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := m.redis.Ping(pingCtx).Err(); err != nil {
		redisUp.Set(0)
		m.logger.Warn("redis ping failed", "error", err)
	} else {
		redisUp.Set(1)
	}

	stats := m.redis.PoolStats()
	redisPoolConns.WithLabelValues("total").Set(float64(stats.TotalConns))
	redisPoolConns.WithLabelValues("idle").Set(float64(stats.IdleConns))
	redisPoolConns.WithLabelValues("stale").Set(float64(stats.StaleConns))
}
