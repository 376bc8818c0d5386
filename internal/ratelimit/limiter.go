// Package ratelimit implements fixed-window request counting over the KV
// store.
package ratelimit

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/parcom/reviewd/internal/storage"
)

// Policy names a limit: at most Max requests per Window.
type Policy struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of one limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Reset      time.Time
}

type entry struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Limiter counts requests per (identifier, policy) in discrete windows that
// reset rather than slide. Storage failures fail open: the request is
// allowed with full quota reported.
type Limiter struct {
	kv storage.KV

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a limiter over the given KV backend.
func New(kv storage.KV) *Limiter {
	return &Limiter{kv: kv, now: time.Now}
}

func limitKey(policy, id string) string {
	return "ratelimit:" + policy + ":" + id
}

// Check records one request from id under the policy and reports whether it
// is allowed.
func (l *Limiter) Check(ctx context.Context, p Policy, id string) Decision {
	key := limitKey(p.Name, id)
	now := l.now()

	allowAll := Decision{Allowed: true, Remaining: p.Max - 1, Reset: now.Add(p.Window)}

	data, found, err := l.kv.Get(ctx, key)
	if err != nil {
		log.Printf("rate limit read failed for %s, allowing: %v", key, err)
		return allowAll
	}

	var e entry
	if found {
		if err := json.Unmarshal(data, &e); err != nil {
			log.Printf("discarding malformed rate limit entry %s: %v", key, err)
			found = false
		}
	}

	if !found || now.After(e.WindowEnd) {
		e = entry{Count: 1, WindowStart: now, WindowEnd: now.Add(p.Window)}
		l.write(ctx, key, e, p.Window)
		return Decision{Allowed: true, Remaining: p.Max - 1, Reset: e.WindowEnd}
	}

	if e.Count >= p.Max {
		retry := e.WindowEnd.Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry, Reset: e.WindowEnd}
	}

	e.Count++
	l.write(ctx, key, e, e.WindowEnd.Sub(now))
	remaining := p.Max - e.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, Reset: e.WindowEnd}
}

func (l *Limiter) write(ctx context.Context, key string, e entry, ttl time.Duration) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("failed to marshal rate limit entry %s: %v", key, err)
		return
	}
	if err := l.kv.Put(ctx, key, data, ttl); err != nil {
		log.Printf("rate limit write failed for %s: %v", key, err)
	}
}

// ClientIP extracts the caller's identifier from proxy headers, falling back
// to a sentinel so unidentified traffic still shares one bucket.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return "unknown"
}
