// Package analytics aggregates persisted reviews into summary statistics.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/storage"
)

// Report summarizes every review persisted across all sessions.
type Report struct {
	TotalReviews  int            `json:"total_reviews"`
	TotalSessions int            `json:"total_sessions"`
	ByCategory    map[string]int `json:"by_category"`
	ByLanguage    map[string]int `json:"by_language"`
	AvgConfidence float64        `json:"avg_confidence"`

	// ByDay counts reviews per UTC calendar day, oldest first.
	ByDay []DayCount `json:"by_day"`
}

// DayCount is the review count for one UTC day.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Aggregator computes reports by scanning the session review lists in the
// KV store. Read-only; it never mutates what it scans.
type Aggregator struct {
	kv storage.KV
}

// New creates an aggregator over the given KV backend.
func New(kv storage.KV) *Aggregator {
	return &Aggregator{kv: kv}
}

// Report scans every session's reviews and aggregates them. A session whose
// stored list is unreadable is skipped, not fatal.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	keys, err := a.kv.List(ctx, "session:")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	rep := &Report{
		ByCategory: make(map[string]int),
		ByLanguage: make(map[string]int),
	}
	days := make(map[string]int)
	confidenceSum := 0

	for _, key := range keys {
		if !strings.HasSuffix(key, ":reviews") {
			continue
		}
		data, found, err := a.kv.Get(ctx, key)
		if err != nil || !found {
			if err != nil {
				log.Printf("skipping unreadable review list %s: %v", key, err)
			}
			continue
		}
		var reviews []review.Review
		if err := json.Unmarshal(data, &reviews); err != nil {
			log.Printf("skipping malformed review list %s: %v", key, err)
			continue
		}

		rep.TotalSessions++
		for _, r := range reviews {
			rep.TotalReviews++
			rep.ByCategory[string(r.Category)]++
			rep.ByLanguage[r.Language]++
			confidenceSum += r.Confidence
			days[r.Timestamp.UTC().Format("2006-01-02")]++
		}
	}

	if rep.TotalReviews > 0 {
		rep.AvgConfidence = float64(confidenceSum) / float64(rep.TotalReviews)
	}

	rep.ByDay = make([]DayCount, 0, len(days))
	for day, count := range days {
		rep.ByDay = append(rep.ByDay, DayCount{Day: day, Count: count})
	}
	sort.Slice(rep.ByDay, func(i, j int) bool { return rep.ByDay[i].Day < rep.ByDay[j].Day })

	return rep, nil
}
