package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitService_Disabled(t *testing.T) {
	svc, err := NewRateLimitService(RateLimitConfig{Enabled: false}, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		allowed, _, err := svc.Allow(context.Background(), "user:42")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, svc.Close())
}

func TestNewRateLimitService_InvalidConfig(t *testing.T) {
	_, err := NewRateLimitService(RateLimitConfig{Enabled: true, RedisURL: "redis://localhost:6379", Limit: 0, Window: time.Minute}, nil)
	assert.Error(t, err)

	_, err = NewRateLimitService(RateLimitConfig{Enabled: true, RedisURL: "::not a url", Limit: 5, Window: time.Minute}, nil)
	assert.Error(t, err)
}

func TestRateLimitService_RedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	svc := NewRateLimitServiceWithClient(client, 5, time.Minute, nil)
	defer svc.Close()

	allowed, _, err := svc.Allow(context.Background(), "user:42")
	assert.Error(t, err)
	assert.False(t, allowed)
}

// recordingHook captures what a client would send and fails it before any
// connection is made.
type recordingHook struct {
	sent []string
}

var errNotSent = errors.New("not sent")

func (h *recordingHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	h.sent = append(h.sent, cmd.Name())
	return ctx, errNotSent
}

func (h *recordingHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	return nil
}

func (h *recordingHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	for _, cmd := range cmds {
		h.sent = append(h.sent, cmd.Name())
	}
	return ctx, errNotSent
}

func (h *recordingHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	return nil
}

func TestRateLimitService_WindowStartsWithExpiryInOneTransaction(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	hook := &recordingHook{}
	client.AddHook(hook)
	svc := NewRateLimitServiceWithClient(client, 5, time.Minute, nil)
	defer svc.Close()

	allowed, _, err := svc.Allow(context.Background(), "user:42")
	assert.ErrorIs(t, err, errNotSent)
	assert.False(t, allowed)
	assert.Equal(t, []string{"multi", "set", "incr", "pttl", "exec"}, hook.sent)
}
