package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	bookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking status transitions by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	inventoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_operations_total",
			Help: "Inventory ledger operations",
		},
		[]string{"op", "outcome"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Payment confirmations by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment gateway webhook deliveries",
		},
		[]string{"type", "outcome"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	redisConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redis_pool_connections",
			Help: "Redis connection pool usage",
		},
		[]string{"state"},
	)
)

func TrackBooking(outcome string) {
	bookingsTotal.WithLabelValues(outcome).Inc()
}

func TrackTransition(event, outcome string) {
	bookingTransitions.WithLabelValues(event, outcome).Inc()
}

func TrackInventory(op, outcome string) {
	inventoryOperations.WithLabelValues(op, outcome).Inc()
}

func TrackSettlement(path, outcome string) {
	settlements.WithLabelValues(path, outcome).Inc()
}

func TrackWebhook(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveGateway records the time since start for a gateway operation.
func ObserveGateway(op string, start time.Time) {
	gatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Monitor samples Redis pool statistics in the background.
type Monitor struct {
	redis    *redis.Client
	interval time.Duration
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient, interval: 30 * time.Second}
}

// Run collects until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.collectRedisMetrics()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collectRedisMetrics() {
	stats := m.redis.PoolStats()
	redisConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
	redisConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
	redisConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))
}
