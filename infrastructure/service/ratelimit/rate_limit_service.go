package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
)

const keyPrefix = "notify:ratelimit:"

// RateLimitService counts requests per key in fixed windows.
type RateLimitService interface {
	// Allow counts one request against key and reports whether it is still
	// within limit for the current window, and how long that window has left.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Close() error
}

type RateLimitConfig struct {
	Enabled  bool
	RedisURL string
	Limit    int
	Window   time.Duration
}

type rateLimitService struct {
	redisClient *redis.Client
	logger      logger.Logger
	limit       int
	window      time.Duration
}

// NewRateLimitService returns a Redis-backed limiter, or one that allows
// everything when limiting is disabled.
func NewRateLimitService(config RateLimitConfig, log logger.Logger) (RateLimitService, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !config.Enabled {
		log.Info(context.Background(), "Rate limiting disabled", nil)
		return NewNoopRateLimitService(), nil
	}
	if config.Limit <= 0 || config.Window <= 0 {
		return nil, fmt.Errorf("rate limit needs a positive limit and window, got %d per %s", config.Limit, config.Window)
	}

	opt, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info(ctx, "Rate limiting service initialized", map[string]interface{}{
		"limit":  config.Limit,
		"window": config.Window.String(),
	})
	return NewRateLimitServiceWithClient(redisClient, config.Limit, config.Window, log), nil
}

func NewRateLimitServiceWithClient(client *redis.Client, limit int, window time.Duration, log logger.Logger) RateLimitService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &rateLimitService{
		redisClient: client,
		logger:      log,
		limit:       limit,
		window:      window,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := keyPrefix + key

	// The window starts with its expiry in the same transaction, so a
	// counter can never be left without one.
	var count *redis.IntCmd
	var remaining *redis.DurationCmd
	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, s.window)
		count = pipe.Incr(ctx, redisKey)
		remaining = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to count request: %w", err)
	}

	retryAfter := remaining.Val()
	if retryAfter <= 0 {
		retryAfter = s.window
	}
	allowed := count.Val() <= int64(s.limit)

	s.logger.Debug(ctx, "Rate limit check", map[string]interface{}{
		"key":     key,
		"current": count.Val(),
		"limit":   s.limit,
		"allowed": allowed,
	})
	return allowed, retryAfter, nil
}

func (s *rateLimitService) Close() error {
	return s.redisClient.Close()
}

type noopRateLimitService struct{}

func NewNoopRateLimitService() RateLimitService {
	return noopRateLimitService{}
}

func (noopRateLimitService) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	return true, 0, nil
}

func (noopRateLimitService) Close() error {
	return nil
}
