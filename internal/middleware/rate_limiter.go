package middleware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// AttemptStore counts hits against a key inside a fixed window. Hit
// increments and returns the count for the key's current window; the window
// is anchored at the first hit and is not extended by later ones.
type AttemptStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
}

// RedisAttempts counts in Redis, for deployments with more than one process.
type RedisAttempts struct {
	client *redis.Client
}

func NewRedisAttempts(client *redis.Client) *RedisAttempts {
	return &RedisAttempts{client: client}
}

func (s *RedisAttempts) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	// NX: only the first hit sets the TTL, keeping the window fixed.
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

// MemoryAttempts is the single-process fallback when Redis is not
// configured.
type MemoryAttempts struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{windows: make(map[string]*attemptWindow)}
}

func (s *MemoryAttempts) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, k)
		}
	}

	w, ok := s.windows[key]
	if !ok {
		w = &attemptWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

type RateLimiter struct {
	store   AttemptStore
	enabled bool
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func NewRateLimiter(store AttemptStore, enabled bool) *RateLimiter {
	return &RateLimiter{
		store:   store,
		enabled: enabled,
	}
}

// RateLimit throttles by client IP and, when a verified token is already on
// the request, by user id as well. On the login route only the IP key exists,
// since no token has been issued yet. Rejected attempts still count toward
// the window.
func (r *RateLimiter) RateLimit(config RateLimitConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !r.enabled || !config.Enabled {
			return c.Next()
		}

		keys := []string{"attempts:ip:" + c.IP()}
		if claims, ok := ClaimsFromCtx(c); ok {
			keys = append(keys, "attempts:user:"+claims.UserID)
		}

		for _, key := range keys {
			count, err := r.store.Hit(c.Context(), key, config.Window)
			if err != nil {
				// A broken attempt store must not lock every caller out.
				log.Printf("rate limit store failed for %s: %v", key, err)
				return c.Next()
			}
			if count > config.Limit {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many attempts. Try again later.",
				})
			}
		}
		return c.Next()
	}
}
