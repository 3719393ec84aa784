package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes used as label values.
const (
	OutcomeSuccess              = "success"
	OutcomeEmptyCart            = "empty_cart"
	OutcomeInsufficientStock    = "insufficient_stock"
	OutcomeProductUnavailable   = "product_unavailable"
	OutcomeInvalidPaymentMethod = "invalid_payment_method"
	OutcomeValidation           = "validation"
	OutcomeError                = "error"
)

// CheckoutMetrics records checkout attempts and the orders they produce.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
	orders   prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	orders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Orders created by committed checkouts.",
	})
	reg.MustRegister(duration, attempts, orders)
	return &CheckoutMetrics{
		duration: duration,
		attempts: attempts,
		orders:   orders,
	}
}

// ObserveCheckout records one attempt and how long it took.
func (c *CheckoutMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if c == nil || c.attempts == nil {
		return
	}
	label := normalizeLabel(outcome)
	c.attempts.WithLabelValues(label).Inc()
	c.duration.WithLabelValues(label).Observe(duration.Seconds())
}

// AddOrders counts orders created by a committed checkout.
func (c *CheckoutMetrics) AddOrders(n int) {
	if c == nil || c.orders == nil || n <= 0 {
		return
	}
	c.orders.Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
