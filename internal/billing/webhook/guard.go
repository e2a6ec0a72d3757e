package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyInflightEvent = "billing:webhook:inflight:"

	defaultInflightTTL = 2 * time.Minute
)

const guardReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// InflightGuard keeps two deliveries of the same event from being processed
// at once. A nil guard admits everything.
type InflightGuard struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewInflightGuard(client *redis.Client, ttl time.Duration) *InflightGuard {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultInflightTTL
	}
	return &InflightGuard{
		client: client,
		script: redis.NewScript(guardReleaseScript),
		ttl:    ttl,
	}
}

// Acquire reports whether the caller owns eventID. The returned release is
// never nil and must be called once processing ends.
func (g *InflightGuard) Acquire(ctx context.Context, eventID string) (func(), bool, error) {
	noop := func() {}
	if g == nil || g.client == nil {
		return noop, true, nil
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return noop, false, errors.New("inflight guard: event id is empty")
	}

	key := keyInflightEvent + eventID
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}

	release := func() {
		// The delivery context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = g.script.Run(releaseCtx, g.client, []string{key}, token).Err()
	}
	return release, true, nil
}
