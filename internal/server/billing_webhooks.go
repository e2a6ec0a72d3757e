package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/scorebench/internal/billing/adapters/stripe"
	"github.com/smallbiznis/scorebench/internal/billing/webhook"
)

const defaultMaxWebhookBody int64 = 1 << 20

// HandleStripeWebhook passes the raw body to the ingestor untouched; the
// signature covers the exact bytes.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	limit := s.cfg.Webhook.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxWebhookBody
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, newValidationError("body", "payload_too_large", "payload too large"))
			return
		}
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if timeout := s.cfg.Webhook.ProcessingTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := s.ingestor.Ingest(ctx, payload, c.GetHeader(stripe.SignatureHeader))
	c.Set("event_type", res.EventType)
	c.Set("billing_outcome", res.Label())
	if res.CorrelationID != "" {
		c.Header("X-Correlation-Id", res.CorrelationID)
	}

	if res.Status == http.StatusOK {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	AbortWithError(c, &webhookError{outcome: res.Outcome, err: res.Err})
}

// webhookError carries a classified delivery failure to the error middleware.
type webhookError struct {
	outcome webhook.Outcome
	err     error
}

func (e *webhookError) Error() string {
	if e.err == nil {
		return e.outcome.Message
	}
	return e.err.Error()
}

func (e *webhookError) Unwrap() error { return e.err }
