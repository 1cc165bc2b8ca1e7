package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit caps requests per caller per window using a Redis sliding window
// over a sorted set. The key is the authenticated user when present, the
// remote address otherwise. A failing Redis fails open: rate limiting is a
// guard, not a dependency.
func RateLimit(client *redis.Client, logger *zap.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if client == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			now := time.Now()
			windowStart := now.Add(-window)

			pipe := client.TxPipeline()
			pipe.ZRemRangeByScore(r.Context(), key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
			countCmd := pipe.ZCard(r.Context(), key)
			pipe.ZAdd(r.Context(), key, redis.Z{
				Score:  float64(now.UnixNano()),
				Member: strconv.FormatInt(now.UnixNano(), 10),
			})
			pipe.Expire(r.Context(), key, window*2)

			if _, err := pipe.Exec(r.Context()); err != nil {
				logger.Warn("rate limit check failed, allowing request",
					zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			count := int(countCmd.Val())
			remaining := limit - count - 1
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(window).Unix(), 10))

			if count >= limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":{"code":"RATE_LIMITED","message":"Too many requests"}}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return "rate_limit:user:" + userID
	}
	return "rate_limit:ip:" + r.RemoteAddr
}
