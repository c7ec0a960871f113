package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queaccounting_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queaccounting_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	authzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queaccounting_authz_decisions_total",
		Help: "Permission evaluator decisions by module, action and outcome",
	}, []string{"module", "action", "outcome"})

	tenantRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queaccounting_tenant_rejections_total",
		Help: "Tenant resolution and subscription gate rejections by reason",
	}, []string{"reason"})

	provisioningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queaccounting_provisioning_duration_seconds",
		Help:    "Duration of business provisioning transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queaccounting_active_subscriptions",
		Help: "Subscriptions currently ACTIVE and unexpired",
	})

	expiredSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queaccounting_expired_subscriptions",
		Help: "Subscriptions EXPIRED or ACTIVE with a past expiry",
	})

	paymentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queaccounting_payment_tx_retries_total",
		Help: "Payment transaction retries after serialization conflicts",
	}, []string{"result"})

	subscriptionCacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queaccounting_subscription_cache_ops_total",
		Help: "Subscription cache lookups by outcome (hit, miss, error, bypass)",
	}, []string{"outcome"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveAuthzDecision records a permission evaluator outcome ("allow"/"deny")
func ObserveAuthzDecision(module, action, outcome string) {
	authzDecisions.WithLabelValues(module, action, outcome).Inc()
}

// ObserveTenantRejection counts a terminal tenant/subscription rejection
func ObserveTenantRejection(reason string) {
	tenantRejections.WithLabelValues(reason).Inc()
}

// ObserveProvisioning records the duration of a provisioning attempt
func ObserveProvisioning(result string, duration time.Duration) {
	provisioningDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetSubscriptionGauges updates the subscription state gauges
func SetSubscriptionGauges(active, expired int) {
	activeSubscriptions.Set(float64(active))
	expiredSubscriptions.Set(float64(expired))
}

// ObservePaymentRetry counts a payment transaction retry outcome
func ObservePaymentRetry(result string) {
	paymentRetries.WithLabelValues(result).Inc()
}

// ObserveSubscriptionCache counts a subscription cache lookup outcome
func ObserveSubscriptionCache(outcome string) {
	subscriptionCacheOps.WithLabelValues(outcome).Inc()
}
