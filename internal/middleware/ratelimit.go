package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rubenelhore/simonkey-identity/internal/request"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultRateLimit is applied when no rate is configured. Formatted-rate
// syntax: "<count>-<period>", e.g. "5-S" is five requests per second.
const DefaultRateLimit = "10-S"

// RateLimit returns HTTP rate-limiting middleware backed by Redis, keyed by
// client IP. This protects the transport; the per-record verification resend
// policy is enforced separately by the verification package.
func RateLimit(redisClient *redis.Client, rateStr string) (func(http.Handler) http.Handler, error) {
	if rateStr == "" {
		rateStr = DefaultRateLimit
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return nil, err
	}
	store, err := redisstore.NewStore(redisClient)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(store, rate)
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler, nil
}
