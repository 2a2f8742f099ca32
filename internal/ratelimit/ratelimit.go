package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type LimiterConfig struct {
	RPS   int
	Burst int
}

// Token bucket per key.
// KEYS[1] = key
// ARGV[1] = max_tokens (burst)
// ARGV[2] = refill_rate (tokens per second)
// ARGV[3] = now (ms)
// Returns 1 if allowed, 0 if not.
var tokenBucket = redis.NewScript(`
local tokens_key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local bucket = redis.call('HMGET', tokens_key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or max_tokens
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last) / 1000
local refill = math.floor(delta * refill_rate)
if refill > 0 then
  last = now
end
tokens = math.min(max_tokens, tokens + refill)
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', tokens_key, 'tokens', tokens, 'last', last)
redis.call('EXPIRE', tokens_key, math.max(2, math.ceil(max_tokens / math.max(refill_rate, 1)) + 1))
return allowed
`)

type RateLimiter struct {
	redis  redis.Scripter
	prefix string
	config LimiterConfig
	now    func() time.Time
}

func New(rdb redis.Scripter, prefix string, cfg LimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	return &RateLimiter{redis: rdb, prefix: prefix, config: cfg, now: time.Now}
}

// Middleware rejects requests over the limit with 429. A Redis failure lets
// the request through; the limiter only guards backend quota.
func (rl *RateLimiter) Middleware(keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.prefix + ":" + keyFunc(r)
			allowed, err := rl.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":` + strconv.Itoa(status) + `}`))
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := rl.now().UnixMilli()
	res, err := tokenBucket.Run(ctx, rl.redis, []string{key}, rl.config.Burst, rl.config.RPS, now).Int64()
	if err != nil {
		slog.Error("redis eval error", "key", key, "error", err)
		return false, err
	}
	slog.Debug("token bucket", "key", key, "allowed", res, "max", rl.config.Burst, "rps", rl.config.RPS)
	return res == 1, nil
}

// KeyByIP keys by the client address. It tolerates RemoteAddr values
// without a port, as left by chi's RealIP middleware.
func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
