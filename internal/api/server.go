package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/geometry"
	"github.com/dunamismax/pixelsuffix/internal/network"
	"github.com/dunamismax/pixelsuffix/internal/pipeline"
	"github.com/dunamismax/pixelsuffix/internal/rules"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderDPR             = "DPR"
	HeaderClientHintDPR   = "Sec-CH-DPR"
	HeaderViewportWidth   = "Viewport-Width"
	HeaderClientHintWidth = "Sec-CH-Viewport-Width"
)

type Server struct {
	logger                 *log.Logger
	resolver               resolver
	capabilities           capabilityReader
	rateLimiter            RateLimiter
	rateLimitSubjectHeader string
	metrics                *metrics
	tracer                 trace.Tracer
	mux                    *http.ServeMux
}

type resolver interface {
	Resolve(ctx context.Context, source string, device pipeline.Device, in pipeline.Input) (pipeline.Resolution, error)
}

type capabilityReader interface {
	Snapshot() capability.Snapshot
}

type Options struct {
	RateLimiter            RateLimiter
	RateLimitSubjectHeader string
	Tracer                 trace.Tracer
}

func NewServer(logger *log.Logger, resolver resolver, capabilities capabilityReader, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if strings.TrimSpace(opts.RateLimitSubjectHeader) == "" {
		opts.RateLimitSubjectHeader = "X-Client-ID"
	}

	s := &Server{
		logger:                 logger,
		resolver:               resolver,
		capabilities:           capabilities,
		rateLimiter:            opts.RateLimiter,
		rateLimitSubjectHeader: opts.RateLimitSubjectHeader,
		metrics:                newMetrics(),
		tracer:                 opts.Tracer,
		mux:                    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(withRequestID(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/resolve", s.handleResolveQuery)
	s.mux.HandleFunc("POST /v1/resolve", s.handleResolveBody)
	s.mux.HandleFunc("POST /v1/resolve/batch", s.handleResolveBatch)
	s.mux.HandleFunc("GET /v1/capabilities", s.handleCapabilities)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolveQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var quality float64
	if raw := strings.TrimSpace(q.Get("quality")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quality must be a number"})
			return
		}
		quality = parsed
	}

	s.resolve(w, r, q.Get("src"), pipeline.Positional{
		Size:    q.Get("size"),
		Scale:   q.Get("scale"),
		Format:  q.Get("format"),
		Quality: quality,
		Rules:   q.Get("rules"),
	})
}

// resolveRequest accepts either the structured form ({"src", "options"}) or
// the positional fields. Options wins when both are present.
type resolveRequest struct {
	Src     string         `json:"src"`
	Options map[string]any `json:"options,omitempty"`
	Size    string         `json:"size,omitempty"`
	Scale   string         `json:"scale,omitempty"`
	Format  string         `json:"format,omitempty"`
	Quality float64        `json:"quality,omitempty"`
	Rules   string         `json:"rules,omitempty"`
}

func (req resolveRequest) input() pipeline.Input {
	if req.Options != nil {
		return pipeline.Structured(req.Options)
	}
	return pipeline.Positional{
		Size:    req.Size,
		Scale:   req.Scale,
		Format:  req.Format,
		Quality: req.Quality,
		Rules:   req.Rules,
	}
}

func (s *Server) handleResolveBody(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.admit(w, r, 1) {
		return
	}

	s.resolve(w, r, req.Src, req.input())
}

const maxBatchSize = 100

type batchRequest struct {
	Requests []resolveRequest `json:"requests"`
}

// batchResult carries either a resolution or the reason its request was
// rejected.
type batchResult struct {
	*pipeline.Resolution
	Error string `json:"error,omitempty"`
}

// handleResolveBatch resolves up to maxBatchSize images for one device and
// bills one resolution per item.
func (s *Server) handleResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	switch n := len(req.Requests); {
	case n == 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requests must not be empty"})
		return
	case n > maxBatchSize:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d requests per batch", maxBatchSize)})
		return
	}
	if !s.admit(w, r, len(req.Requests)) {
		return
	}

	device := deviceFromRequest(r)
	results := make([]batchResult, len(req.Requests))
	for i, item := range req.Requests {
		res, err := s.resolveOne(r, item.Src, device, item.input())
		switch {
		case isRequestError(err):
			results[i].Error = err.Error()
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to resolve image URL"})
			return
		default:
			results[i].Resolution = &res
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, source string, in pipeline.Input) {
	res, err := s.resolveOne(r, source, deviceFromRequest(r), in)
	switch {
	case isRequestError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to resolve image URL"})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// resolveOne runs the pipeline and records the outcome.
func (s *Server) resolveOne(r *http.Request, source string, device pipeline.Device, in pipeline.Input) (pipeline.Resolution, error) {
	res, err := s.resolver.Resolve(r.Context(), source, device, in)
	if err != nil {
		s.metrics.resolveErrors.WithLabelValues(errorReason(err)).Inc()
		if !isRequestError(err) {
			s.logger.Printf("resolve failed request_id=%s src=%q err=%v", r.Header.Get(HeaderRequestID), source, err)
		}
		return pipeline.Resolution{}, err
	}

	s.metrics.resolutionsTotal.WithLabelValues(formatLabel(res.Format), string(res.Network)).Inc()
	return res, nil
}

func isRequestError(err error) bool {
	return errors.Is(err, rules.ErrMalformedRuleString) || errors.Is(err, geometry.ErrUnknownScaleMode)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	snapshot := capability.Snapshot{}
	if s.capabilities != nil {
		snapshot = s.capabilities.Snapshot()
	}

	out := make(map[string]string, len(capability.All()))
	for _, c := range capability.All() {
		out[string(c)] = snapshot[c].String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": out})
}

// deviceFromRequest reads the client hints. Network is only set when the
// request carries a network hint, so the pipeline's own source applies
// otherwise.
func deviceFromRequest(r *http.Request) pipeline.Device {
	device := pipeline.Device{
		PixelRatio:    headerFloat(r, HeaderClientHintDPR, HeaderDPR),
		ViewportWidth: headerFloat(r, HeaderClientHintWidth, HeaderViewportWidth),
	}
	for _, h := range []string{network.HeaderNetworkClass, network.HeaderECT, network.HeaderSaveData} {
		if r.Header.Get(h) != "" {
			device.Network = network.FromRequest(r)
			break
		}
	}
	return device
}

func headerFloat(r *http.Request, names ...string) float64 {
	for _, name := range names {
		raw := strings.TrimSpace(r.Header.Get(name))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, rules.ErrMalformedRuleString):
		return "malformed_rules"
	case errors.Is(err, geometry.ErrUnknownScaleMode):
		return "unknown_scale"
	default:
		return "internal"
	}
}

func formatLabel(format string) string {
	if format == "" {
		return "none"
	}
	return format
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
