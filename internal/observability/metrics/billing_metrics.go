package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PersistenceReasonLockTimeout          = "db_lock_timeout"
	PersistenceReasonSerializationFailure = "serialization_failure"
	PersistenceReasonDeadlock             = "deadlock"
	PersistenceReasonUniqueViolation      = "unique_violation"
	PersistenceReasonDeadlineExceeded     = "deadline_exceeded"
	PersistenceReasonUnknown              = "unknown"
)

// BillingMetrics are the Prometheus series scraped from /metrics.
type BillingMetrics struct {
	events            *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	persistenceErrors *prometheus.CounterVec
}

// NewBillingMetrics registers the billing series on registerer.
func NewBillingMetrics(registerer prometheus.Registerer, cfg Config) (*BillingMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "scorebench"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	events, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scorebench_billing_events_total",
		Help:        "Billing webhook deliveries by event type and acknowledgement outcome.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "scorebench_billing_event_duration_seconds",
		Help:        "Time spent reconciling one billing event.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		ConstLabels: constLabels,
	}, []string{"event_type"}))
	if err != nil {
		return nil, err
	}
	persistenceErrors, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "scorebench_billing_persistence_errors_total",
		Help:        "Billing persistence failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	return &BillingMetrics{
		events:            events,
		duration:          duration,
		persistenceErrors: persistenceErrors,
	}, nil
}

// register reuses an identical collector when one is already registered.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// ObserveEvent records one acknowledged delivery.
func (m *BillingMetrics) ObserveEvent(eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	m.events.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// ObservePersistenceError records a failed database write.
func (m *BillingMetrics) ObservePersistenceError(err error) {
	if m == nil || err == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(ClassifyPersistenceReason(err)).Inc()
}

// ClassifyPersistenceReason maps database errors to a bounded label set.
func ClassifyPersistenceReason(err error) string {
	if err == nil {
		return PersistenceReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return PersistenceReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return PersistenceReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return PersistenceReasonLockTimeout
		case "40001":
			return PersistenceReasonSerializationFailure
		case "40P01":
			return PersistenceReasonDeadlock
		case "23505":
			return PersistenceReasonUniqueViolation
		}
	}
	return PersistenceReasonUnknown
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
