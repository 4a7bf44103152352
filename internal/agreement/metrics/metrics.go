package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the agreement module.
type Metrics struct {
	AgreementsInitialized prometheus.Counter
	AgreementsClosed      prometheus.Counter

	// Committed claims by fee route ("native", "asset")
	Claims *prometheus.CounterVec

	// Claimed base units and collected fees by fee route
	ClaimedUnits  *prometheus.CounterVec
	FeesCollected *prometheus.CounterVec

	// Rejections by operation and error code
	Rejections *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
}

// New registers the agreement metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the agreement metrics on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AgreementsInitialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "airdrop_agreements_initialized_total",
			Help: "Total number of agreements initialized",
		}),
		AgreementsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "airdrop_agreements_closed_total",
			Help: "Total number of agreements closed",
		}),
		Claims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_claims_total",
			Help: "Total committed claims by fee route",
		}, []string{"route"}),
		ClaimedUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_claimed_base_units_total",
			Help: "Token base units released from escrow by claims",
		}, []string{"route"}),
		FeesCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_fees_collected_total",
			Help: "Fee units paid to distributors by claims",
		}, []string{"route"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "airdrop_rejections_total",
			Help: "Rejected calls by operation and error code",
		}, []string{"operation", "code"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "airdrop_operation_duration_seconds",
			Help:    "Duration of agreement operations including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementInitialized() {
	if m != nil {
		m.AgreementsInitialized.Inc()
	}
}

func (m *Metrics) IncrementClosed() {
	if m != nil {
		m.AgreementsClosed.Inc()
	}
}

// ObserveClaim records a successful claim.
func (m *Metrics) ObserveClaim(route string, baseUnits, fee uint64) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(route).Inc()
	m.ClaimedUnits.WithLabelValues(route).Add(float64(baseUnits))
	m.FeesCollected.WithLabelValues(route).Add(float64(fee))
}

// IncrementRejection records a failed call.
func (m *Metrics) IncrementRejection(operation, code string) {
	if m != nil {
		m.Rejections.WithLabelValues(operation, code).Inc()
	}
}

// ObserveDuration records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m != nil {
		m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
