// Package stripe adapts the Stripe API to the billing domain: it authenticates
// webhook deliveries and reads subscriptions back from the provider.
package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/config"
)

const SignatureHeader = "Stripe-Signature"

const opVerify = "stripe.verify"

// Verifier authenticates raw webhook deliveries and turns them into domain events.
type Verifier struct {
	secret    string
	tolerance time.Duration
	log       *zap.Logger
}

func NewVerifier(cfg config.Config, log *zap.Logger) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Stripe.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	tolerance := cfg.Stripe.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		log:       log.Named("billing.stripe"),
	}, nil
}

// Verify checks the signature header over the exact raw body and decodes the
// event. Nothing is parsed before the signature is accepted.
func (v *Verifier) Verify(payload []byte, sigHeader string) (domain.Event, error) {
	sigHeader = strings.TrimSpace(sigHeader)
	if sigHeader == "" {
		return nil, domain.Signature(opVerify, domain.ErrMissingSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		v.log.Debug("signature rejected", zap.Error(err))
		return nil, domain.Signature(opVerify, domain.ErrInvalidSignature)
	}

	return decodeEvent(event)
}

func decodeEvent(event stripego.Event) (domain.Event, error) {
	meta := domain.EventMeta{
		ID:   strings.TrimSpace(event.ID),
		Type: domain.EventType(event.Type),
	}
	if event.Created > 0 {
		meta.Created = time.Unix(event.Created, 0).UTC()
	}
	if meta.ID == "" {
		return nil, domain.Validation(opVerify, domain.ErrInvalidPayload)
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch meta.Type {
	case domain.EventCheckoutCompleted:
		var session stripeCheckoutSession
		if err := decodeObject(raw, &session); err != nil {
			return nil, err
		}
		if strings.TrimSpace(session.ID) == "" {
			return nil, domain.Validation(opVerify, domain.ErrInvalidPayload)
		}
		return domain.CheckoutCompleted{EventMeta: meta, Session: session.toDomain()}, nil

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripeSubscription
		if err := decodeObject(raw, &sub); err != nil {
			return nil, err
		}
		if strings.TrimSpace(sub.ID) == "" {
			return nil, domain.Validation(opVerify, domain.ErrInvalidPayload)
		}
		out := sub.toDomain()
		switch meta.Type {
		case domain.EventSubscriptionCreated:
			return domain.SubscriptionCreated{EventMeta: meta, Subscription: out}, nil
		case domain.EventSubscriptionUpdated:
			return domain.SubscriptionUpdated{EventMeta: meta, Subscription: out}, nil
		default:
			return domain.SubscriptionDeleted{EventMeta: meta, Subscription: out}, nil
		}

	case domain.EventInvoicePaymentSucceeded, domain.EventInvoicePaymentFailed:
		var invoice stripeInvoice
		if err := decodeObject(raw, &invoice); err != nil {
			return nil, err
		}
		if strings.TrimSpace(invoice.ID) == "" {
			return nil, domain.Validation(opVerify, domain.ErrInvalidPayload)
		}
		if meta.Type == domain.EventInvoicePaymentSucceeded {
			return domain.InvoicePaymentSucceeded{EventMeta: meta, Invoice: invoice.toDomain()}, nil
		}
		return domain.InvoicePaymentFailed{EventMeta: meta, Invoice: invoice.toDomain()}, nil

	default:
		return domain.Unhandled{EventMeta: meta}, nil
	}
}

func decodeObject(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return domain.Validation(opVerify, domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Validation(opVerify, errors.Join(domain.ErrInvalidPayload, err))
	}
	return nil
}
