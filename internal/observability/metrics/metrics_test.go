package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "invoice.payment_failed"),
		attribute.String("customer_id", "cus_1"),
		attribute.String("event_id", "evt_1"),
		attribute.Int("status_code", 500),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_id" || attr.Key == "event_id" {
			t.Fatalf("unexpected high-cardinality label %s", attr.Key)
		}
	}
}

func TestRecordOnNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordDelivery(context.Background(), "checkout.session.completed", 200)
	m.RecordSignatureFailure(context.Background(), "invalid_signature")
	m.RecordInflightRejected(context.Background(), "checkout.session.completed")
	m.RecordProviderCall(context.Background(), "get_subscription", "ok")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "scorebench-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordDelivery(context.Background(), "customer.subscription.deleted", 200)
}
