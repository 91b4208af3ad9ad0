package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/token"
)

// errorResponse is the JSON error body for the REST surface.
type errorResponse struct {
	Error string `json:"error"`
}

// logged wraps a handler with request logging.
func (s *Server) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(lrw, r)

		log.Debug(log.CatServer, "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lrw.statusCode,
			"duration", time.Since(start).String())
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying ResponseWriter so websocket upgrades
// work through the logging middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := lrw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
}

// bearerClaims verifies the Authorization header when present. A request
// without the header carries no claims; authentication of the outer surface
// is a gateway concern.
func (s *Server) bearerClaims(r *http.Request) (*token.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return nil, fmt.Errorf("invalid Authorization header format (expected 'Bearer <token>')")
	}

	claims, err := s.issuer.Verify(value)
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.ErrorErr(log.CatServer, "Failed to encode response", err)
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, errorResponse{Error: message})
}
