package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithCorrelationID(ctx, "01HZX")
	ctx = WithEvent(ctx, "evt_1", "invoice.payment_failed")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "01HZX", CorrelationIDFromContext(ctx))
	id, typ := EventFromContext(ctx)
	assert.Equal(t, "evt_1", id)
	assert.Equal(t, "invoice.payment_failed", typ)
}
