package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSignature     = errors.New("missing_signature")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidMetadata      = errors.New("invalid_metadata")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidInterval      = errors.New("invalid_interval")
	ErrUnknownPrice         = errors.New("unknown_price")
	ErrUnknownStatus        = errors.New("unknown_status")
	ErrUnsupportedEvent     = errors.New("unsupported_event")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrEventInFlight        = errors.New("event_in_flight")
)

// Kind groups failures by how a delivery must be acknowledged.
type Kind int

const (
	KindUnknown Kind = iota
	KindSignature
	KindValidation
	KindMissingEntity
	KindPersistence
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindValidation:
		return "validation"
	case KindMissingEntity:
		return "missing_entity"
	case KindPersistence:
		return "persistence"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified billing failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification.
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Signature(op string, err error) error { return newError(KindSignature, op, err) }
func Validation(op string, err error) error { return newError(KindValidation, op, err) }
func Missing(op string, err error) error { return newError(KindMissingEntity, op, err) }
func Persistence(op string, err error) error { return newError(KindPersistence, op, err) }
func Upstream(op string, err error) error { return newError(KindUpstream, op, err) }

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
