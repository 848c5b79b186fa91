// ABOUTME: Chat handlers: send a prompt, stream session events, reset the conversation
// ABOUTME: Turns run in a goroutine bound to the session and publish through the hub

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/chat"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/dedupe"
	"github.com/2389/cortex-chat/internal/render"
	"github.com/2389/cortex-chat/internal/sse"
)

// Browser events published by the chat handlers, in addition to the
// render.Event* names.
const (
	EventConnected = "connected"
	EventTurnStart = "turn-start"
	EventTurnEnd   = "turn-end"
	EventReset     = "reset"
)

// turnUpdate is the JSON payload of turn-start and turn-end.
type turnUpdate struct {
	ID        string `json:"id"`
	HTML      string `json:"html,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	SQL       string `json:"sql,omitempty"`
}

// handleSend starts a turn for the submitted message
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var guardKey string
	if sub := r.FormValue("submission_id"); sub != "" && s.guard != nil {
		guardKey = dedupe.Key(sess.ID, sub)
		if s.guard.CheckAndMark(guardKey) {
			s.logger.Debug("ignoring duplicate submission", "session_id", sess.ID, "submission_id", sub)
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	turn, err := s.chat.Start(sess.Store, r.FormValue("message"))
	if err != nil {
		if guardKey != "" {
			s.guard.Forget(guardKey)
		}
		switch {
		case errors.Is(err, chat.ErrEmptyPrompt):
			http.Error(w, "Message required", http.StatusBadRequest)
		case errors.Is(err, conversation.ErrTurnInProgress):
			http.Error(w, "A response is still streaming", http.StatusConflict)
		default:
			s.logger.Error("failed to start turn", "error", err)
			http.Error(w, "Failed to start turn", http.StatusInternalServerError)
		}
		return
	}

	turnID := uuid.New().String()[:8]
	s.publishTurn(sess.ID, EventTurnStart, turnUpdate{
		ID:   turnID,
		HTML: string(render.RenderMessage(agent.NewUserMessage(turn.Prompt()), "u-"+turnID)),
	})

	s.turns.Add(1)
	go s.runTurn(sess, turn, turnID)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "turn_id": turnID})
}

func (s *Server) runTurn(sess *conversation.Session, turn *chat.Turn, turnID string) {
	defer s.turns.Done()

	logger := s.logger.With("session_id", sess.ID, "turn_id", turnID)
	renderer := render.NewHTML(turnID, func(event string, data []byte) {
		s.hub.Publish(sess.ID, conversation.Update{Event: event, Data: data})
	}, logger)

	start := time.Now()
	result, err := turn.Run(sess.Context(), renderer)
	if err != nil {
		logger.Warn("turn ended with error", "error", err)
	}

	end := turnUpdate{
		ID:        turnID,
		RequestID: result.RequestID,
		SQL:       result.SQL,
		Outcome:   result.Status(),
	}
	s.publishTurn(sess.ID, EventTurnEnd, end)

	logger.Info("turn finished", "outcome", end.Outcome, "request_id", result.RequestID, "duration", time.Since(start))
}

func (s *Server) publishTurn(sessionID, event string, u turnUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Error("failed to encode turn update", "event", event, "error", err)
		return
	}
	s.hub.Publish(sessionID, conversation.Update{Event: event, Data: data})
}

// handleStream streams the session's events until the client disconnects
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	updates, _ := s.hub.Subscribe(r.Context(), sess.ID)

	stream, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	hello, _ := json.Marshal(map[string]any{"session_id": sess.ID, "in_turn": sess.Store.InTurn()})
	if err := stream.WriteEvent(EventConnected, hello); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-sess.Context().Done():
			return

		case <-heartbeat.C:
			if err := stream.WriteComment("heartbeat"); err != nil {
				return
			}

		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := stream.WriteEvent(u.Event, u.Data); err != nil {
				s.logger.Debug("stream client gone", "session_id", sess.ID, "error", err)
				return
			}
		}
	}
}

// handleReset starts a new conversation for the session
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.Store.Reset(r.Context()); err != nil {
		if errors.Is(err, conversation.ErrTurnInProgress) {
			http.Error(w, "A response is still streaming", http.StatusConflict)
			return
		}
		s.logger.Error("failed to reset conversation", "session_id", sess.ID, "error", err)
		http.Error(w, "Failed to reset conversation", http.StatusInternalServerError)
		return
	}

	s.hub.Publish(sess.ID, conversation.Update{Event: EventReset, Data: []byte("{}")})
	s.logger.Info("conversation reset", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
