// ABOUTME: Web UI server for cortex-chat: routes, session cookies, and page rendering
// ABOUTME: Turns run in the background and stream to the browser over SSE

package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/assets"
	"github.com/2389/cortex-chat/internal/chat"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/dedupe"
	"github.com/2389/cortex-chat/internal/render"
)

const (
	// SessionCookieName is the name of the browser session cookie
	SessionCookieName = "cortex_chat_session"

	// SessionCookieMaxAge is how long the browser keeps the cookie
	SessionCookieMaxAge = 30 * 24 * time.Hour

	// heartbeatInterval is how often idle event streams get a comment frame
	heartbeatInterval = 15 * time.Second
)

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Options configures the web server.
type Options struct {
	Hub          *conversation.Hub
	Chat         *chat.Service
	Guard        *dedupe.Guard
	CookieSecure bool
	// Title is shown in the page header
	Title  string
	Logger *slog.Logger
}

// Server handles the chat UI routes.
type Server struct {
	hub          *conversation.Hub
	chat         *chat.Service
	guard        *dedupe.Guard
	cookieSecure bool
	title        string
	logger       *slog.Logger
	turns        sync.WaitGroup
}

// New creates the web server.
func New(opts Options) (*Server, error) {
	if opts.Hub == nil {
		return nil, errors.New("web: hub is required")
	}
	if opts.Chat == nil {
		return nil, errors.New("web: chat service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := opts.Title
	if title == "" {
		title = "Cortex Chat"
	}
	return &Server{
		hub:          opts.Hub,
		chat:         opts.Chat,
		guard:        opts.Guard,
		cookieSecure: opts.CookieSecure,
		title:        title,
		logger:       logger.With("component", "web"),
	}, nil
}

// RegisterRoutes registers all chat routes on the given mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("POST /chat/send", s.handleSend)
	mux.HandleFunc("GET /chat/stream", s.handleStream)
	mux.HandleFunc("POST /chat/reset", s.handleReset)
	mux.HandleFunc("POST /sql/run", s.handleRunSQL)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET "+assets.Prefix, http.StripPrefix(assets.Prefix, assets.FileServer()))
}

// Wait blocks until every background turn has finished.
func (s *Server) Wait() {
	s.turns.Wait()
}

// sessionID returns the browser's session ID, issuing a new cookie if the
// request has none or an invalid one.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(SessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug("issued session cookie", "session_id", id)
	return id
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*conversation.Session, bool) {
	sess, err := s.hub.Session(r.Context(), s.sessionID(w, r))
	if err != nil {
		s.logger.Error("failed to load session", "error", err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// messageView is one history entry on the chat page
type messageView struct {
	Role string
	HTML template.HTML
	SQL  string
}

type pageData struct {
	Title            string
	StyleURL         string
	ScriptURL        string
	Messages         []messageView
	WarehouseEnabled bool
	InTurn           bool
}

// handlePage renders the chat page with the session's history
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	msgs := sess.Store.Messages()
	data := pageData{
		Title:            s.title,
		StyleURL:         assets.URL("chat.css"),
		ScriptURL:        assets.URL("chat.js"),
		Messages:         make([]messageView, 0, len(msgs)),
		WarehouseEnabled: s.chat.HasWarehouse(),
		InTurn:           sess.Store.InTurn(),
	}
	for i, msg := range msgs {
		view := messageView{
			Role: string(msg.Role),
			HTML: render.RenderMessage(msg, "h"+strconv.Itoa(i)),
		}
		if msg.Role == agent.RoleAssistant {
			view.SQL = chat.ExtractSQL(msg)
		}
		data.Messages = append(data.Messages, view)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render chat page", "error", err)
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
