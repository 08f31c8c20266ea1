package http

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter caps inbound events of one connection. A nil limiter allows
// everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	every := time.Minute / time.Duration(perMinute)
	return &rateLimiter{limiter: rate.NewLimiter(rate.Every(every), perMinute)}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}
