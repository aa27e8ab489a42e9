package middleware

import (
	"net"
	"net/http"
	"sync"

	"github.com/cmlabs-hris/settlement-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/jwt"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter keeps one token bucket per client key.
type KeyedRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}

	return limiter
}

// RateLimit limits each operator, falling back to the client IP when the
// request carries no verified token.
func RateLimit(r rate.Limit, b int) func(http.Handler) http.Handler {
	limiter := NewKeyedRateLimiter(r, b)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key, ok := jwt.OperatorFromContext(req.Context())
			if !ok {
				key = clientIP(req)
			}
			if !limiter.GetLimiter(key).Allow() {
				response.TooManyRequests(w, "Too many requests")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
