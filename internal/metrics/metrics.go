package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/the127/blobyard/internal/storageBackends"
)

const namespace = "blobyard"

const (
	OutcomeOk             = "ok"
	OutcomeNotFound       = "not_found"
	OutcomeOffsetConflict = "offset_conflict"
	OutcomeDigestMissing  = "digest_missing"
	OutcomeDigestInvalid  = "digest_invalid"
	OutcomeError          = "error"
)

type Collector struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

func NewCollector(registerer prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Storage backend operations by outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Storage backend operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	for _, collector := range []prometheus.Collector{c.operations, c.durations} {
		err := registerer.Register(collector)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) Observe(operation string, start time.Time, err error) {
	c.operations.WithLabelValues(operation, Outcome(err)).Inc()
	c.durations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Outcome classifies an operation error into a metric label.
func Outcome(err error) string {
	var conflict *storageBackends.OffsetConflictError

	switch {
	case err == nil:
		return OutcomeOk

	case errors.Is(err, storageBackends.ErrNotFound):
		return OutcomeNotFound

	case errors.As(err, &conflict):
		return OutcomeOffsetConflict

	case errors.Is(err, storageBackends.ErrDigestMissing):
		return OutcomeDigestMissing

	case errors.Is(err, storageBackends.ErrDigestInvalid):
		return OutcomeDigestInvalid

	default:
		return OutcomeError
	}
}
