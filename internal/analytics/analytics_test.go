package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/storage"
)

func seedReviews(t *testing.T, kv storage.KV, session string, reviews []review.Review) {
	t.Helper()
	data, err := json.Marshal(reviews)
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Put(context.Background(), "session:"+session+":reviews", data, 0); err != nil {
		t.Fatal(err)
	}
}

func TestReport(t *testing.T) {
	kv := storage.NewMemoryKV()

	day1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	seedReviews(t, kv, "a", []review.Review{
		{ID: "1", Category: review.CategoryQuick, Language: "go", Confidence: 80, Timestamp: day1},
		{ID: "2", Category: review.CategorySecurity, Language: "go", Confidence: 60, Timestamp: day2},
	})
	seedReviews(t, kv, "b", []review.Review{
		{ID: "3", Category: review.CategoryQuick, Language: "python", Confidence: 70, Timestamp: day2},
	})
	// History keys and malformed lists are skipped, not fatal.
	_ = kv.Put(context.Background(), "session:a:history", []byte("[]"), 0)
	_ = kv.Put(context.Background(), "session:c:reviews", []byte("not json"), 0)

	rep, err := New(kv).Report(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rep.TotalReviews != 3 {
		t.Errorf("TotalReviews = %d, want 3", rep.TotalReviews)
	}
	if rep.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", rep.TotalSessions)
	}
	if rep.ByCategory["quick"] != 2 || rep.ByCategory["security"] != 1 {
		t.Errorf("ByCategory = %v", rep.ByCategory)
	}
	if rep.ByLanguage["go"] != 2 || rep.ByLanguage["python"] != 1 {
		t.Errorf("ByLanguage = %v", rep.ByLanguage)
	}
	if want := 70.0; rep.AvgConfidence != want {
		t.Errorf("AvgConfidence = %v, want %v", rep.AvgConfidence, want)
	}
	if len(rep.ByDay) != 2 || rep.ByDay[0].Day != "2026-08-30" || rep.ByDay[1].Count != 2 {
		t.Errorf("ByDay = %v", rep.ByDay)
	}
}

func TestReportEmpty(t *testing.T) {
	rep, err := New(storage.NewMemoryKV()).Report(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalReviews != 0 || rep.AvgConfidence != 0 {
		t.Errorf("empty store: %+v", rep)
	}
}
