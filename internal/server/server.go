// Package server exposes the review service over HTTP and websockets.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/parcom/reviewd/internal/agent"
	"github.com/parcom/reviewd/internal/analytics"
	"github.com/parcom/reviewd/internal/cache"
	"github.com/parcom/reviewd/internal/ratelimit"
	"github.com/parcom/reviewd/internal/review"
)

const (
	serviceName = "reviewd"
	version     = "1.0.0"

	// DefaultSession is used when a request names no session.
	DefaultSession = "default"
)

// Server wires the HTTP surface to the agent and its adapters.
type Server struct {
	agent     *agent.Agent
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	analytics *analytics.Aggregator
	policy    ratelimit.Policy
}

// New builds a server around the given agent and adapters.
func New(a *agent.Agent, c *cache.Cache, l *ratelimit.Limiter, ag *analytics.Aggregator, policy ratelimit.Policy) *Server {
	return &Server{agent: a, cache: c, limiter: l, analytics: ag, policy: policy}
}

// Handler returns the full middleware chain and route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/review", s.handleReview)
	mux.HandleFunc("/api/reviews", s.handleReviews)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("/agent", s.handleSocket)

	return s.recoverPanics(s.withHeaders(s.withRateLimit(mux)))
}

// rateLimitExempt paths skip the limiter so probes and the index stay cheap.
var rateLimitExempt = map[string]bool{
	"/":       true,
	"/health": true,
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withHeaders attaches CORS and security headers to every response and
// short-circuits preflight requests. The websocket upgrade hijacks the
// connection before these headers are written, which is fine: the upgrade
// response is not a CORS-visible payload.
func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rateLimitExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		d := s.limiter.Check(r.Context(), s.policy, ratelimit.ClientIP(r))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: %d requests per %s", s.policy.Max, s.policy.Window))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": version,
		"endpoints": []string{
			"GET /health",
			"POST /api/review",
			"GET /api/reviews",
			"GET /api/history",
			"GET /api/status",
			"GET /api/search",
			"GET /api/analytics",
			"GET /api/cache/stats",
			"POST /api/cache/clear",
			"WS /agent",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type reviewRequest struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Language string `json:"language"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rev, err := s.agent.Run(r.Context(), sessionName(r), agent.Submission{
		Code:     req.Code,
		Category: req.Category,
		Language: req.Language,
	}, nil)
	if err != nil {
		status, msg, extra := classify(err)
		writeErrorExtra(w, status, msg, extra)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"review":  rev,
	})
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reviews, err := s.agent.Reviews(r.Context(), sessionName(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	history, err := s.agent.History(r.Context(), sessionName(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := sessionName(r)
	reviews, err := s.agent.Reviews(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history, err := s.agent.History(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"session":       name,
		"reviewsCount":  len(reviews),
		"messagesCount": len(history),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	k := 10
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "k must be an integer between 1 and 100")
			return
		}
		k = n
	}

	results, err := s.agent.Search(query, k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.analytics.Report(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.cache.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

// sessionName reads the ?session= parameter, defaulting when absent.
func sessionName(r *http.Request) string {
	if name := r.URL.Query().Get("session"); name != "" {
		return name
	}
	return DefaultSession
}

// classify maps pipeline errors onto HTTP status codes. Language mismatches
// carry their detection hints through to the body.
func classify(err error) (int, string, map[string]any) {
	if errors.Is(err, agent.ErrEmptyCode) {
		return http.StatusBadRequest, err.Error(), nil
	}
	var v *review.ValidationError
	if errors.As(err, &v) {
		extra := map[string]any{}
		if len(v.Detected) > 0 {
			extra["detected"] = v.Detected
		}
		if v.Suggestion != "" {
			extra["suggestion"] = v.Suggestion
		}
		return http.StatusBadRequest, v.Message, extra
	}
	return http.StatusInternalServerError, err.Error(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorExtra(w, status, msg, nil)
}

func writeErrorExtra(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}
