package server

import (
	"math"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter bounds the request rate on the request channel. Once more than
// limit requests land within the window, the server answers 429 until the
// bucket refills.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
	}
}

// exceeded returns how long to wait before the next request, or zero if the
// request is allowed.
func (r *rateLimiter) exceeded() time.Duration {
	reservation := r.limiter.Reserve()

	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()

		return delay
	}

	return 0
}

func retryAfterSeconds(wait time.Duration) string {
	seconds := int(math.Ceil(wait.Seconds()))

	if seconds < 1 {
		seconds = 1
	}

	return strconv.Itoa(seconds)
}
