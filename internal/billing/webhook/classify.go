package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

// Outcome is the acknowledgement returned to the provider for one delivery.
type Outcome struct {
	Status    int
	Retryable bool
	Message   string
}

// Label is the low-cardinality outcome used in logs and metrics.
func (o Outcome) Label() string {
	switch {
	case o.Status == http.StatusOK:
		return "ok"
	case o.Retryable:
		return "retryable"
	default:
		return "rejected"
	}
}

// Classify maps a processing error onto an acknowledgement. Only failures a
// later redelivery can fix are retryable; everything the provider would
// resend unchanged is rejected with 400.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Status: http.StatusOK}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Outcome{Status: http.StatusInternalServerError, Retryable: true, Message: "processing timed out"}
	}

	switch domain.KindOf(err) {
	case domain.KindSignature:
		return Outcome{Status: http.StatusBadRequest, Message: "invalid signature"}
	case domain.KindValidation:
		return Outcome{Status: http.StatusBadRequest, Message: "invalid event"}
	case domain.KindMissingEntity:
		return Outcome{Status: http.StatusBadRequest, Message: "unknown entity"}
	case domain.KindUpstream:
		return Outcome{Status: http.StatusInternalServerError, Retryable: true, Message: "provider unavailable"}
	default:
		return Outcome{Status: http.StatusInternalServerError, Retryable: true, Message: "processing failed"}
	}
}
