package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/scorebench/internal/billing/adapters/stripe"
	"github.com/smallbiznis/scorebench/internal/billing/domain"
	"github.com/smallbiznis/scorebench/internal/billing/webhook"
	"github.com/smallbiznis/scorebench/internal/config"
	"github.com/smallbiznis/scorebench/internal/observability"
)

const testWebhookSecret = "whsec_test"

type fakeDispatcher struct {
	err    error
	block  bool
	events []domain.Event
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	if f.block {
		<-ctx.Done()
		return domain.Persistence("billing.dispatch", ctx.Err())
	}
	return f.err
}

func newTestServer(t *testing.T, dispatcher *fakeDispatcher, maxBody int64) *gin.Engine {
	t.Helper()
	return newTestServerWithWebhook(t, dispatcher, config.WebhookConfig{MaxBodyBytes: maxBody})
}

func newTestServerWithWebhook(t *testing.T, dispatcher *fakeDispatcher, webhookCfg config.WebhookConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Stripe:  config.StripeConfig{WebhookSecret: testWebhookSecret},
		Webhook: webhookCfg,
	}
	verifier, err := stripe.NewVerifier(cfg, zap.NewNop())
	require.NoError(t, err)

	ingestor := webhook.NewIngestor(webhook.Params{
		Log:        zap.NewNop(),
		Verifier:   verifier,
		Dispatcher: dispatcher,
	})
	engine := NewEngine(observability.Config{}, zap.NewNop())
	NewServer(ServerParams{
		Engine:   engine,
		Cfg:      cfg,
		Log:      zap.NewNop(),
		Ingestor: ingestor,
	})
	return engine
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(stripe.SignatureHeader, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, body []byte) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

var failedInvoicePayload = []byte(`{"id":"evt_inv","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","object":"invoice","subscription":"sub_1"}}}`)

func TestStripeWebhookAcknowledged(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestServer(t, dispatcher, 0)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, signedRequest(t, failedInvoicePayload))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"received":true}`, resp.Body.String())
	assert.NotEmpty(t, resp.Header().Get("X-Correlation-Id"))
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	require.Len(t, dispatcher.events, 1)
	ev, ok := dispatcher.events[0].(domain.InvoicePaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "sub_1", ev.Invoice.SubscriptionID)
}

func TestStripeWebhookRejectsUnsignedDelivery(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestServer(t, dispatcher, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhooks/stripe", bytes.NewReader(failedInvoicePayload))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "webhook_rejected", payload.Type)
	assert.Empty(t, dispatcher.events)
}

func TestStripeWebhookRejectsTamperedBody(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestServer(t, dispatcher, 0)

	req := signedRequest(t, failedInvoicePayload)
	tampered := bytes.Replace(failedInvoicePayload, []byte("sub_1"), []byte("sub_2"), 1)
	req.Body = io.NopCloser(bytes.NewReader(tampered))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, dispatcher.events)
}

func TestStripeWebhookRetryableFailure(t *testing.T) {
	dispatcher := &fakeDispatcher{err: domain.Persistence("billing.set_subscription_status", errors.New("could not obtain lock"))}
	router := newTestServer(t, dispatcher, 0)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, signedRequest(t, failedInvoicePayload))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	payload := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "webhook_retry", payload.Type)
	assert.Equal(t, "processing failed", payload.Message)
	assert.Contains(t, payload.Detail, "could not obtain lock")
	assert.Contains(t, payload.Detail, "billing.set_subscription_status")
}

func TestStripeWebhookMissingEntityIsNotRetried(t *testing.T) {
	dispatcher := &fakeDispatcher{err: domain.Missing("billing.subscription_deleted", fmt.Errorf("%w: sub_9", domain.ErrSubscriptionNotFound))}
	router := newTestServer(t, dispatcher, 0)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, signedRequest(t, failedInvoicePayload))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "webhook_rejected", payload.Type)
	assert.Contains(t, payload.Detail, "subscription_not_found: sub_9")
}

func TestStripeWebhookProcessingDeadline(t *testing.T) {
	dispatcher := &fakeDispatcher{block: true}
	router := newTestServerWithWebhook(t, dispatcher, config.WebhookConfig{ProcessingTimeout: 20 * time.Millisecond})

	started := time.Now()
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, signedRequest(t, failedInvoicePayload))

	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	payload := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "webhook_retry", payload.Type)
	assert.Contains(t, payload.Detail, context.DeadlineExceeded.Error())
	require.Len(t, dispatcher.events, 1)
}

func TestStripeWebhookBodyLimit(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := newTestServer(t, dispatcher, 64)

	big := []byte(`{"id":"evt_big","type":"invoice.payment_failed","data":{"object":{"id":"` + strings.Repeat("x", 128) + `"}}}`)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, signedRequest(t, big))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "payload_too_large", payload.Errors[0].Code)
	assert.Empty(t, dispatcher.events)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	router := newTestServer(t, &fakeDispatcher{}, 0)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp.Body.Bytes()).Type)
}

