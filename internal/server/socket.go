package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parcom/reviewd/internal/agent"
	"github.com/parcom/reviewd/internal/review"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The HTTP surface is wide open (wildcard CORS), so the socket is too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type socketFrame struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
	Language string `json:"language,omitempty"`
}

// handleSocket upgrades the connection and services frames sequentially:
// one inbound message is fully handled, including any model call and
// persistence, before the next is read. Connections sharing a session name
// share its state through the session store.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	name := sessionName(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read failed for session %s: %v", name, err)
			}
			return
		}
		// A review runs to completion and persists even if the client
		// disconnects mid-stream, so the work is not tied to the
		// connection's lifetime.
		s.handleFrame(context.Background(), conn, name, data)
	}
}

func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, sessionName string, data []byte) {
	var frame socketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		writeFrame(conn, map[string]any{"type": "error", "error": "invalid JSON frame"})
		return
	}

	switch frame.Type {
	case "submit_code":
		s.handleSubmit(ctx, conn, sessionName, data, frame)

	case "ping":
		writeFrame(conn, map[string]any{"type": "pong"})

	case "list_reviews":
		reviews, err := s.agent.Reviews(ctx, sessionName)
		if err != nil {
			writeFrame(conn, map[string]any{"type": "error", "error": err.Error()})
			return
		}
		writeFrame(conn, map[string]any{"type": "reviews", "reviews": reviews})

	case "get_history":
		history, err := s.agent.History(ctx, sessionName)
		if err != nil {
			writeFrame(conn, map[string]any{"type": "error", "error": err.Error()})
			return
		}
		writeFrame(conn, map[string]any{"type": "history", "history": history})

	default:
		writeFrame(conn, map[string]any{"type": "error", "error": "Unknown message type"})
	}
}

func (s *Server) handleSubmit(ctx context.Context, conn *websocket.Conn, sessionName string, raw []byte, frame socketFrame) {
	if err := validateSubmitFrame(raw); err != nil {
		writeFrame(conn, map[string]any{"type": "error", "error": err.Error()})
		return
	}

	rev, err := s.agent.Run(ctx, sessionName, agent.Submission{
		Code:     frame.Code,
		Category: frame.Category,
		Language: frame.Language,
		Stream:   true,
	}, func(fragment string) {
		writeFrame(conn, map[string]any{"type": "stream", "stage": "review", "text": fragment})
	})
	if err != nil {
		var v *review.ValidationError
		if errors.As(err, &v) {
			out := map[string]any{"type": "language_error", "error": v.Message}
			if v.Suggestion != "" {
				out["suggestion"] = v.Suggestion
			}
			writeFrame(conn, out)
			return
		}
		writeFrame(conn, map[string]any{"type": "error", "error": err.Error()})
		return
	}

	writeFrame(conn, map[string]any{"type": "done", "review": rev})
}

func writeFrame(conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("failed to write websocket frame: %v", err)
	}
}
