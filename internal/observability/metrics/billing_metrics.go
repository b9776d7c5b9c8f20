// Package metrics exposes prometheus instrumentation for the generation
// and delivery pipelines.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BillingMetrics struct {
	generatorRuns      prometheus.Counter
	generatorErrors    *prometheus.CounterVec
	invoicesGenerated  prometheus.Counter
	invoicesOverdue    prometheus.Counter
	deliveryAttempts   prometheus.Counter
	deliveryRetries    prometheus.Counter
	deliveryFailures   prometheus.Counter
	paymentsRejected   *prometheus.CounterVec
	generatorRunLength prometheus.Histogram
}

var (
	billingOnce sync.Once
	billing     *BillingMetrics
)

// Billing returns the process-wide billing metrics, registering them on
// first use.
func Billing() *BillingMetrics {
	billingOnce.Do(func() {
		billing = newBillingMetrics(prometheus.DefaultRegisterer)
	})
	return billing
}

func newBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	factory := promauto.With(reg)
	return &BillingMetrics{
		generatorRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_generator_runs_total",
			Help: "Number of recurring generation scans executed.",
		}),
		generatorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invora_generator_errors_total",
			Help: "Generation failures, by stage.",
		}, []string{"stage"}),
		invoicesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_invoices_generated_total",
			Help: "Invoices materialized from recurring definitions.",
		}),
		invoicesOverdue: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_invoices_marked_overdue_total",
			Help: "Invoices flipped to OVERDUE by the sweep.",
		}),
		deliveryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_delivery_attempts_total",
			Help: "Invoice email delivery attempts.",
		}),
		deliveryRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_delivery_retries_total",
			Help: "Delivery attempts rescheduled with backoff.",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "invora_delivery_failures_total",
			Help: "Deliveries that exhausted their retry budget.",
		}),
		paymentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invora_payments_rejected_total",
			Help: "Payment mutations rejected by validation.",
		}, []string{"reason"}),
		generatorRunLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invora_generator_run_duration_seconds",
			Help:    "Wall time of a full generation scan.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *BillingMetrics) IncGeneratorRun()            { m.generatorRuns.Inc() }
func (m *BillingMetrics) IncGeneratorError(st string) { m.generatorErrors.WithLabelValues(st).Inc() }
func (m *BillingMetrics) IncInvoiceGenerated()        { m.invoicesGenerated.Inc() }
func (m *BillingMetrics) IncInvoiceOverdue()          { m.invoicesOverdue.Inc() }
func (m *BillingMetrics) IncDeliveryAttempt()         { m.deliveryAttempts.Inc() }
func (m *BillingMetrics) IncDeliveryRetry()           { m.deliveryRetries.Inc() }
func (m *BillingMetrics) IncDeliveryFailure()         { m.deliveryFailures.Inc() }
func (m *BillingMetrics) IncPaymentRejected(reason string) {
	m.paymentsRejected.WithLabelValues(reason).Inc()
}
func (m *BillingMetrics) ObserveGeneratorRun(seconds float64) {
	m.generatorRunLength.Observe(seconds)
}

// ResetBillingMetricsForTest clears the singleton so tests can install a
// scratch registry.
func ResetBillingMetricsForTest() {
	billingOnce = sync.Once{}
	billing = nil
}
