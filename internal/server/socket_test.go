package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialSocket(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/agent" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestSocketPing(t *testing.T) {
	conn := dialSocket(t, newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()), "")

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if frame := readFrame(t, conn); frame["type"] != "pong" {
		t.Errorf("frame = %v", frame)
	}
}

func TestSocketUnknownType(t *testing.T) {
	conn := dialSocket(t, newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()), "")

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatal(err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["error"] != "Unknown message type" {
		t.Errorf("frame = %v", frame)
	}

	// The connection stays open afterwards.
	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if frame := readFrame(t, conn); frame["type"] != "pong" {
		t.Errorf("frame = %v", frame)
	}
}

func TestSocketInvalidJSON(t *testing.T) {
	conn := dialSocket(t, newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()), "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if frame := readFrame(t, conn); frame["type"] != "error" {
		t.Errorf("frame = %v", frame)
	}
}

func TestSocketSubmitStreams(t *testing.T) {
	model := &fakeModel{chunks: []string{"Looks ", "good. ", "Confidence: 83/100"}}
	srv := newTestServer(t, model, defaultPolicy())
	conn := dialSocket(t, srv, "?session=ws-test")

	if err := conn.WriteJSON(map[string]any{
		"type":     "submit_code",
		"code":     jsCode,
		"category": "quick",
		"language": "javascript",
	}); err != nil {
		t.Fatal(err)
	}

	var streamed strings.Builder
	for {
		frame := readFrame(t, conn)
		switch frame["type"] {
		case "stream":
			text, _ := frame["text"].(string)
			streamed.WriteString(text)
			continue
		case "done":
			rev, ok := frame["review"].(map[string]any)
			if !ok {
				t.Fatalf("done frame without review: %v", frame)
			}
			if rev["confidence"] != float64(83) {
				t.Errorf("confidence = %v", rev["confidence"])
			}
			if streamed.String() != "Looks good. Confidence: 83/100" {
				t.Errorf("streamed = %q", streamed.String())
			}
		default:
			t.Fatalf("unexpected frame: %v", frame)
		}
		break
	}

	// The completed review is visible over list_reviews.
	if err := conn.WriteJSON(map[string]any{"type": "list_reviews"}); err != nil {
		t.Fatal(err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "reviews" {
		t.Fatalf("frame = %v", frame)
	}
	if reviews, ok := frame["reviews"].([]any); !ok || len(reviews) != 1 {
		t.Errorf("reviews = %v", frame["reviews"])
	}

	// And the two conversation turns over get_history.
	if err := conn.WriteJSON(map[string]any{"type": "get_history"}); err != nil {
		t.Fatal(err)
	}
	frame = readFrame(t, conn)
	if frame["type"] != "history" {
		t.Fatalf("frame = %v", frame)
	}
	if history, ok := frame["history"].([]any); !ok || len(history) != 2 {
		t.Errorf("history = %v", frame["history"])
	}
}

func TestSocketLanguageErrorBeforeModel(t *testing.T) {
	model := &fakeModel{text: "should never run"}
	conn := dialSocket(t, newTestServer(t, model, defaultPolicy()), "")

	py := "def f(self):\n    if self.x:\n        print(self.x)\n    elif self.y:\n        pass"
	if err := conn.WriteJSON(map[string]any{
		"type":     "submit_code",
		"code":     py,
		"language": "javascript",
	}); err != nil {
		t.Fatal(err)
	}

	frame := readFrame(t, conn)
	if frame["type"] != "language_error" {
		t.Fatalf("frame = %v", frame)
	}
	if frame["suggestion"] != "python" {
		t.Errorf("suggestion = %v", frame["suggestion"])
	}
}

func TestSocketSubmitMissingCode(t *testing.T) {
	conn := dialSocket(t, newTestServer(t, &fakeModel{text: "ok"}, defaultPolicy()), "")

	if err := conn.WriteJSON(map[string]any{"type": "submit_code"}); err != nil {
		t.Fatal(err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v", frame)
	}
	if msg, _ := frame["error"].(string); !strings.Contains(msg, "code") {
		t.Errorf("error = %q", msg)
	}
}
