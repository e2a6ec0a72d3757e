package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

const testSecret = "whsec_test"

func newTestVerifier() *Verifier {
	return &Verifier{secret: testSecret, tolerance: 5 * time.Minute, log: zap.NewNop()}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","type":"charge.succeeded","created":1700000000,"data":{"object":{}}}`)
	v := newTestVerifier()

	event, err := v.Verify(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
	if err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}
	if _, ok := event.(domain.Unhandled); !ok {
		t.Fatalf("expected unhandled event, got %T", event)
	}
	if event.EventID() != "evt_123" {
		t.Fatalf("unexpected event id %q", event.EventID())
	}

	_, err = v.Verify(payload, buildStripeSignatureHeader("wrong", payload, time.Now().Unix()))
	if !errors.Is(err, domain.ErrInvalidSignature) || domain.KindOf(err) != domain.KindSignature {
		t.Fatalf("expected invalid signature error, got %v", err)
	}
}

func TestVerifyMissingHeader(t *testing.T) {
	_, err := newTestVerifier().Verify([]byte(`{}`), "  ")
	if !errors.Is(err, domain.ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
	if domain.KindOf(err) != domain.KindSignature {
		t.Fatalf("expected signature kind, got %s", domain.KindOf(err))
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_1"}}}`)
	header := buildStripeSignatureHeader(testSecret, payload, time.Now().Unix())

	tampered := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_2"}}}`)
	if _, err := newTestVerifier().Verify(tampered, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_1"}}}`)
	header := buildStripeSignatureHeader(testSecret, payload, time.Now().Add(-time.Hour).Unix())

	if _, err := newTestVerifier().Verify(payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for stale timestamp, got %v", err)
	}
}

func TestVerifyDecodesEvents(t *testing.T) {
	created := time.Now().UTC().Unix()
	tests := []struct {
		name  string
		event map[string]any
		check func(t *testing.T, ev domain.Event)
	}{{
		name: "checkout.session.completed",
		event: map[string]any{
			"id":   "evt_checkout",
			"type": "checkout.session.completed",
			"data": map[string]any{"object": map[string]any{
				"id":           "cs_1",
				"customer":     "cus_1",
				"subscription": "sub_1",
				"mode":         "subscription",
				"metadata":     map[string]any{"user_id": " 42 ", "is_organization": "false"},
			}},
		},
		check: func(t *testing.T, ev domain.Event) {
			got, ok := ev.(domain.CheckoutCompleted)
			if !ok {
				t.Fatalf("expected checkout event, got %T", ev)
			}
			if got.Session.SubscriptionID != "sub_1" || got.Session.CustomerID != "cus_1" {
				t.Fatalf("unexpected session %+v", got.Session)
			}
			if got.Session.Metadata["user_id"] != "42" {
				t.Fatalf("expected trimmed metadata, got %q", got.Session.Metadata["user_id"])
			}
		},
	}, {
		name: "customer.subscription.updated with item periods",
		event: map[string]any{
			"id":   "evt_sub",
			"type": "customer.subscription.updated",
			"data": map[string]any{"object": map[string]any{
				"id":                   "sub_1",
				"customer":             map[string]any{"id": "cus_1", "object": "customer"},
				"status":               "trialing",
				"cancel_at_period_end": true,
				"items": map[string]any{"data": []any{map[string]any{
					"current_period_start": 1640995200,
					"current_period_end":   1643673600,
					"price": map[string]any{
						"id":        "price_basic_monthly",
						"recurring": map[string]any{"interval": "month"},
					},
				}}},
			}},
		},
		check: func(t *testing.T, ev domain.Event) {
			got, ok := ev.(domain.SubscriptionUpdated)
			if !ok {
				t.Fatalf("expected subscription updated, got %T", ev)
			}
			sub := got.Subscription
			if sub.CustomerID != "cus_1" || sub.PriceID != "price_basic_monthly" || sub.Interval != "month" {
				t.Fatalf("unexpected subscription %+v", sub)
			}
			if sub.PeriodStart.Unix() != 1640995200 || sub.PeriodEnd.Unix() != 1643673600 {
				t.Fatalf("unexpected period %s - %s", sub.PeriodStart, sub.PeriodEnd)
			}
			if !sub.CancelAtPeriodEnd {
				t.Fatalf("expected cancel_at_period_end")
			}
		},
	}, {
		name: "customer.subscription.deleted with legacy periods",
		event: map[string]any{
			"id":   "evt_del",
			"type": "customer.subscription.deleted",
			"data": map[string]any{"object": map[string]any{
				"id":                   "sub_9",
				"status":               "canceled",
				"current_period_start": 1640995200,
				"current_period_end":   1643673600,
			}},
		},
		check: func(t *testing.T, ev domain.Event) {
			got, ok := ev.(domain.SubscriptionDeleted)
			if !ok {
				t.Fatalf("expected subscription deleted, got %T", ev)
			}
			if got.Subscription.PeriodEnd.Unix() != 1643673600 {
				t.Fatalf("unexpected period end %s", got.Subscription.PeriodEnd)
			}
		},
	}, {
		name: "invoice.payment_succeeded with parent subscription",
		event: map[string]any{
			"id":   "evt_inv",
			"type": "invoice.payment_succeeded",
			"data": map[string]any{"object": map[string]any{
				"id":       "in_1",
				"customer": "cus_1",
				"parent": map[string]any{
					"subscription_details": map[string]any{"subscription": "sub_test_123"},
				},
			}},
		},
		check: func(t *testing.T, ev domain.Event) {
			got, ok := ev.(domain.InvoicePaymentSucceeded)
			if !ok {
				t.Fatalf("expected invoice succeeded, got %T", ev)
			}
			if got.Invoice.SubscriptionID != "sub_test_123" {
				t.Fatalf("unexpected subscription id %q", got.Invoice.SubscriptionID)
			}
		},
	}, {
		name: "invoice.payment_failed with top-level subscription",
		event: map[string]any{
			"id":   "evt_inv_failed",
			"type": "invoice.payment_failed",
			"data": map[string]any{"object": map[string]any{
				"id":           "in_2",
				"subscription": "sub_2",
			}},
		},
		check: func(t *testing.T, ev domain.Event) {
			got, ok := ev.(domain.InvoicePaymentFailed)
			if !ok {
				t.Fatalf("expected invoice failed, got %T", ev)
			}
			if got.Invoice.SubscriptionID != "sub_2" {
				t.Fatalf("unexpected subscription id %q", got.Invoice.SubscriptionID)
			}
		},
	}}

	v := newTestVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event["created"] = created
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			ev, err := v.Verify(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if ev.EventType() != domain.EventType(tt.event["type"].(string)) {
				t.Fatalf("unexpected type %q", ev.EventType())
			}
			tt.check(t, ev)
		})
	}
}

func TestVerifyRejectsAuthenticMalformedObject(t *testing.T) {
	payload := []byte(`{"id":"evt_bad","type":"customer.subscription.updated","data":{"object":{"status":"active"}}}`)
	_, err := newTestVerifier().Verify(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signed := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
