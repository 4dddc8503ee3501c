package api

import (
	"net/http"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/id"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const HeaderRequestID = "X-Request-ID"

// withRequestID echoes the caller's request ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = id.New()
			r.Header.Set(HeaderRequestID, requestID)
		}
		w.Header().Set(HeaderRequestID, requestID)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.request_id", requestID))

		next.ServeHTTP(w, r)
	})
}
