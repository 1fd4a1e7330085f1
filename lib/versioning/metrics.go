package versioning

import (
	"errors"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// result label values of dver_mutations_total
func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrVersionConflict):
		return "conflict"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid"
	default:
		return "persistence"
	}
}

// observeMutation records the outcome and latency of one guard operation.
func observeMutation(collection, op string, start time.Time, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dver_mutations_total{collection=%q,op=%q,result=%q}`,
		collection, op, resultOf(err))).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`dver_mutation_duration_seconds{collection=%q,op=%q}`,
		collection, op)).UpdateDuration(start)
}

// observeHistory counts written history records per kind.
func observeHistory(collection string, tombstone bool) {
	kind := "snapshot"
	if tombstone {
		kind = "tombstone"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`dver_history_records_total{collection=%q,kind=%q}`,
		collection, kind)).Inc()
}
