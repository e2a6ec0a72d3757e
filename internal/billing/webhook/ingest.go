// Package webhook turns one raw provider delivery into an acknowledgement.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
	obsctx "github.com/smallbiznis/scorebench/internal/observability/context"
	"github.com/smallbiznis/scorebench/internal/observability/logger"
	"github.com/smallbiznis/scorebench/internal/observability/metrics"
	"github.com/smallbiznis/scorebench/internal/observability/tracing"
)

const opIngest = "billing.ingest"

// Verifier authenticates a raw delivery.
type Verifier interface {
	Verify(payload []byte, sigHeader string) (domain.Event, error)
}

// Dispatcher reconciles a verified event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Verifier   Verifier
	Dispatcher Dispatcher
	Guard      *InflightGuard          `optional:"true"`
	Metrics    *metrics.Metrics        `optional:"true"`
	Billing    *metrics.BillingMetrics `optional:"true"`
}

// Result describes a processed delivery.
type Result struct {
	Outcome
	EventID       string
	EventType     string
	CorrelationID string
	Err           error
}

type Ingestor struct {
	log        *zap.Logger
	verifier   Verifier
	dispatcher Dispatcher
	guard      *InflightGuard
	metrics    *metrics.Metrics
	billing    *metrics.BillingMetrics
	tracer     trace.Tracer
}

func NewIngestor(p Params) *Ingestor {
	return &Ingestor{
		log:        p.Log.Named("billing.webhook"),
		verifier:   p.Verifier,
		dispatcher: p.Dispatcher,
		guard:      p.Guard,
		metrics:    p.Metrics,
		billing:    p.Billing,
		tracer:     otel.Tracer("scorebench/billing/webhook"),
	}
}

// Ingest verifies, dispatches and classifies one delivery. It never panics on
// malformed input and always returns an acknowledgement.
func (i *Ingestor) Ingest(ctx context.Context, payload []byte, sigHeader string) Result {
	started := time.Now()
	correlationID := obsctx.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = ulid.Make().String()
		ctx = obsctx.WithCorrelationID(ctx, correlationID)
	}

	ctx, span := i.tracer.Start(ctx, "billing.ingest")
	defer span.End()

	res := Result{CorrelationID: correlationID, EventType: "unverified"}
	res.Err = i.process(ctx, payload, sigHeader, &res)
	res.Outcome = Classify(res.Err)

	if res.EventID != "" {
		ctx = obsctx.WithEvent(ctx, res.EventID, res.EventType)
	}
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("billing.event_id", res.EventID),
		attribute.String("billing.event_type", res.EventType),
		attribute.String("billing.outcome", res.Label()),
		attribute.Int("http.status_code", res.Status),
	)...)
	if res.Err != nil {
		span.RecordError(tracing.SafeError(res.Err))
		span.SetStatus(codes.Error, res.Label())
	}

	i.metrics.RecordDelivery(ctx, res.EventType, res.Status)
	i.billing.ObserveEvent(res.EventType, res.Label(), time.Since(started))
	i.logOutcome(ctx, res, time.Since(started))
	return res
}

func (i *Ingestor) process(ctx context.Context, payload []byte, sigHeader string, res *Result) error {
	ev, err := i.verifier.Verify(payload, sigHeader)
	if err != nil {
		if domain.KindOf(err) == domain.KindSignature {
			i.metrics.RecordSignatureFailure(ctx, signatureReason(err))
		}
		return err
	}
	res.EventID = ev.EventID()
	res.EventType = string(ev.EventType())
	ctx = obsctx.WithEvent(ctx, res.EventID, res.EventType)

	release, owned, err := i.guard.Acquire(ctx, res.EventID)
	if err != nil {
		// Redis being down must not block reconciliation.
		logger.WithContext(ctx, i.log).Warn("inflight guard unavailable", zap.Error(err))
		owned = true
	}
	defer release()
	if !owned {
		i.metrics.RecordInflightRejected(ctx, res.EventType)
		return domain.Upstream(opIngest, fmt.Errorf("%w: %s", domain.ErrEventInFlight, res.EventID))
	}

	return i.dispatcher.Dispatch(ctx, ev)
}

func signatureReason(err error) string {
	if errors.Is(err, domain.ErrMissingSignature) {
		return "missing"
	}
	return "invalid"
}

func (i *Ingestor) logOutcome(ctx context.Context, res Result, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("outcome", res.Label()),
		zap.Int("status_code", res.Status),
		zap.Bool("retryable", res.Retryable),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if res.Err != nil {
		fields = append(fields,
			zap.String("error_kind", domain.KindOf(res.Err).String()),
			zap.Error(res.Err),
		)
	}

	level := zapcore.InfoLevel
	switch {
	case res.Retryable:
		level = zapcore.ErrorLevel
	case res.Err != nil:
		level = zapcore.WarnLevel
	}
	logger.WithContext(ctx, i.log).Log(level, "billing delivery processed", fields...)
}
