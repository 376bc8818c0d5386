package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parcom/reviewd/internal/agent"
	"github.com/parcom/reviewd/internal/analytics"
	"github.com/parcom/reviewd/internal/cache"
	"github.com/parcom/reviewd/internal/llm"
	"github.com/parcom/reviewd/internal/ratelimit"
	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/search"
	"github.com/parcom/reviewd/internal/session"
	"github.com/parcom/reviewd/internal/storage"
)

const jsCode = "const x = 1;\nlet y = x + 1;\nconsole.log(y);"

type fakeModel struct {
	text   string
	chunks []string
}

func (f *fakeModel) Model() string { return "fake-model" }

func (f *fakeModel) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	if req.Stream && f.chunks != nil {
		ch := make(chan string, len(f.chunks))
		for _, c := range f.chunks {
			ch <- c
		}
		close(ch)
		errs := make(chan error)
		close(errs)
		return llm.Result{Chunks: ch, Errs: errs}, nil
	}
	return llm.Result{Text: f.text}, nil
}

func newTestServer(t *testing.T, model llm.Client, policy ratelimit.Policy) *Server {
	t.Helper()
	kv := storage.NewMemoryKV()
	prompts, err := review.NewPromptLibrary("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { prompts.Close() })

	index, err := search.New("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { index.Close() })

	reviewCache := cache.New(kv, time.Hour)
	a := agent.New(model, prompts, session.NewStore(kv), reviewCache, index, 1024)
	return New(a, reviewCache, ratelimit.New(kv), analytics.New(kv), policy)
}

func defaultPolicy() ratelimit.Policy {
	return ratelimit.Policy{Name: "test", Max: 100, Window: time.Minute}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			return rec, nil
		}
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()).Handler()

	rec, body := doJSON(t, h, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" || body["service"] != serviceName {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security header")
	}
}

func TestOptionsShortCircuits(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()).Handler()

	req := httptest.NewRequest("OPTIONS", "/api/review", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight should have no body, got %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing allow-methods header")
	}
}

func TestReviewEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "Clean code. Confidence: 81/100"}, defaultPolicy()).Handler()

	rec, body := doJSON(t, h, "POST", "/api/review", `{"code":`+mustJSON(jsCode)+`,"category":"quick"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Errorf("body = %v", body)
	}
	rev, ok := body["review"].(map[string]any)
	if !ok {
		t.Fatalf("no review in body: %v", body)
	}
	if rev["confidence"] != float64(81) {
		t.Errorf("confidence = %v", rev["confidence"])
	}

	// The review is now listed for the default session.
	rec, _ = doJSON(t, h, "GET", "/api/reviews", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reviews status = %d", rec.Code)
	}
	var reviews []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &reviews); err != nil || len(reviews) != 1 {
		t.Errorf("reviews = %s", rec.Body.String())
	}

	rec, body = doJSON(t, h, "GET", "/api/status", "")
	if rec.Code != http.StatusOK || body["reviewsCount"] != float64(1) || body["messagesCount"] != float64(2) {
		t.Errorf("status body = %v", body)
	}
}

func TestReviewEmptyCode(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "x"}, defaultPolicy()).Handler()

	rec, body := doJSON(t, h, "POST", "/api/review", `{"code":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["error"] == "" {
		t.Error("missing error message")
	}
}

func TestReviewLanguageMismatch(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "x"}, defaultPolicy()).Handler()

	py := "def f(self):\n    if self.x:\n        print(self.x)\n    elif self.y:\n        pass"
	rec, body := doJSON(t, h, "POST", "/api/review", `{"code":`+mustJSON(py)+`,"language":"javascript"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["suggestion"] != "python" {
		t.Errorf("body = %v", body)
	}
}

func TestRateLimit(t *testing.T) {
	policy := ratelimit.Policy{Name: "tight", Max: 2, Window: time.Minute}
	h := newTestServer(t, &fakeModel{text: "ok"}, policy).Handler()

	for i := 0; i < 2; i++ {
		rec, _ := doJSON(t, h, "GET", "/api/reviews", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec, body := doJSON(t, h, "GET", "/api/reviews", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if body["error"] == nil {
		t.Error("missing error body")
	}

	// Health stays reachable past the limit.
	if rec, _ := doJSON(t, h, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()).Handler()

	readOnly := []string{
		"/api/reviews",
		"/api/history",
		"/api/status",
		"/api/search?q=x",
		"/api/analytics",
		"/api/cache/stats",
	}
	for _, path := range readOnly {
		rec, _ := doJSON(t, h, "POST", path, "{}")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: status = %d, want 405", path, rec.Code)
		}
	}

	for _, path := range []string{"/api/review", "/api/cache/clear"} {
		rec, _ := doJSON(t, h, "GET", path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: status = %d, want 405", path, rec.Code)
		}
	}
}

func TestUnknownPath(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()).Handler()
	rec, _ := doJSON(t, h, "GET", "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "Beware of SQL injection here. Confidence: 77/100"}, defaultPolicy()).Handler()

	rec, _ := doJSON(t, h, "POST", "/api/review", `{"code":`+mustJSON(jsCode)+`,"category":"security"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d", rec.Code)
	}

	rec, body := doJSON(t, h, "GET", "/api/search?q=injection", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body.String())
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Errorf("results = %v", body["results"])
	}

	if rec, _ := doJSON(t, h, "GET", "/api/search", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "Fine. Confidence: 70/100"}, defaultPolicy()).Handler()

	payload := `{"code":` + mustJSON(jsCode) + `}`
	doJSON(t, h, "POST", "/api/review", payload)
	doJSON(t, h, "POST", "/api/review", payload) // cache hit

	rec, body := doJSON(t, h, "GET", "/api/cache/stats", "")
	if rec.Code != http.StatusOK || body["hits"] != float64(1) || body["misses"] != float64(1) {
		t.Errorf("stats = %v", body)
	}

	rec, body = doJSON(t, h, "POST", "/api/cache/clear", "")
	if rec.Code != http.StatusOK || body["removed"] != float64(1) {
		t.Errorf("clear = %v", body)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeModel{text: "Fine. Confidence: 70/100"}, defaultPolicy()).Handler()

	doJSON(t, h, "POST", "/api/review", `{"code":`+mustJSON(jsCode)+`}`)

	rec, body := doJSON(t, h, "GET", "/api/analytics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["total_reviews"] != float64(1) {
		t.Errorf("analytics = %v", body)
	}
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
