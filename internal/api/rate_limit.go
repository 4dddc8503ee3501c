package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/ratelimit"
)

const (
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitCost      = "X-RateLimit-Cost"
)

type RateLimiter interface {
	Charge(ctx context.Context, c ratelimit.Charge) (ratelimit.Decision, error)
}

// admit bills cost resolutions to the calling client. It writes the
// rejection and returns false when the client is over budget. Limiter
// outages let the request through.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, cost int) bool {
	if s.rateLimiter == nil {
		return true
	}

	subject := strings.TrimSpace(r.Header.Get(s.rateLimitSubjectHeader))
	if subject == "" {
		subject = "anonymous"
	}
	route := routeLabel(r.URL.Path)

	decision, err := s.rateLimiter.Charge(r.Context(), ratelimit.Charge{Subject: subject, Cost: cost})
	switch {
	case errors.Is(err, ratelimit.ErrCostExceedsCapacity):
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return false
	case err != nil:
		s.logger.Printf("rate limiter check failed subject=%s cost=%d err=%v", subject, cost, err)
		return true
	}

	w.Header().Set(HeaderRateLimitRemaining, strconv.FormatInt(decision.Remaining, 10))
	w.Header().Set(HeaderRateLimitCost, strconv.Itoa(decision.Cost))
	if decision.Allowed {
		return true
	}

	retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	return false
}
