package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bazodiac/bafe/pkg/compliance"
	"github.com/bazodiac/bafe/pkg/ruleset"
)

// DefaultMaxBodyBytes bounds a request body when Options leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Validator runs a validation on a raw request body.
// *compliance.Validator implements it.
type Validator interface {
	ValidateJSON(ctx context.Context, raw []byte) (*compliance.Response, error)
}

// Options configures a Server.
type Options struct {
	Validator Validator
	Rulesets  compliance.RulesetSource
	Logger    *slog.Logger
	// MaxBodyBytes caps the request body; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// RateLimitRPS is the per-client request rate; 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server serves the validation API.
type Server struct {
	validator Validator
	rulesets  compliance.RulesetSource
	logger    *slog.Logger
	maxBody   int64
	limiter   *RateLimiter
}

// NewServer creates a server. Validator and Rulesets are required.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		validator: opts.Validator,
		rulesets:  opts.Rulesets,
		logger:    logger.With("component", "api"),
		maxBody:   opts.MaxBodyBytes,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = NewRateLimiter(opts.RateLimitRPS, burst)
	}
	return s
}

// RateLimiter returns the request limiter, or nil when limiting is off.
func (s *Server) RateLimiter() *RateLimiter { return s.limiter }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/validate", s.handleValidate)
	r.Get("/rulesets/{id}", s.handleRuleset)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", w.Header().Get(RequestIDHeader),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleValidate forwards the body unchanged. A contract violation is a 422
// naming the offending field; every other failure is a 400.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteBadRequest(w, r, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteBadRequest(w, r, "request body could not be read")
		return
	}

	resp, err := s.validator.ValidateJSON(r.Context(), body)
	if err != nil {
		s.writeValidationError(w, r, err)
		return
	}
	out, err := resp.Canonical()
	if err != nil {
		s.writeValidationError(w, r, &compliance.DefectError{Message: "response does not canonicalize", Err: err})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var inErr *compliance.InputError
	switch {
	case errors.As(err, &inErr):
		WriteContractViolation(w, r, inErr.Path, inErr.Message)
	case errors.Is(err, compliance.ErrInternalContract):
		s.logger.ErrorContext(r.Context(), "validator defect",
			"error", err,
			"request_id", w.Header().Get(RequestIDHeader),
		)
		WriteErrorR(w, r, http.StatusBadRequest, TitleInternalDefect,
			"The validator produced a response that violates its own contract.")
	default:
		s.logger.WarnContext(r.Context(), "validation failed", "error", err)
		WriteBadRequest(w, r, err.Error())
	}
}

func (s *Server) handleRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rs, err := s.rulesets.Get(id)
	switch {
	case errors.Is(err, ruleset.ErrNotFound), errors.Is(err, ruleset.ErrInvalidID):
		WriteNotFound(w, r, fmt.Sprintf("unknown ruleset %q", id))
		return
	case err != nil:
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs.Summary())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
