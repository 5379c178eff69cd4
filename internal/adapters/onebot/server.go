package onebot

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bilirelay/internal/core/domain"
	"bilirelay/internal/core/ports"
)

const (
	EventPath  = "/onebot/event"
	HealthPath = "/healthz"

	signatureHeader = "X-Signature"
	maxEventSize    = 1 << 20
)

type route struct {
	pattern *regexp.Regexp
	handler ports.HandlerFunc
}

// Server receives OneBot v11 HTTP POST events and dispatches message events
// to the registered pattern handlers.
type Server struct {
	secret string
	logger zerolog.Logger

	mu     sync.RWMutex
	routes []route

	// handlers outlive the HTTP request, so they get their own context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(secret string, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		secret: secret,
		logger: logger.With().Str("component", "onebot").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register implements ports.Registrar. For each message only the first
// route whose pattern matches fires.
func (s *Server) Register(pattern *regexp.Regexp, h ports.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{pattern: pattern, handler: h})
}

// Router returns the HTTP handler for the event endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(EventPath, s.handleEvent)
	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Shutdown cancels running handlers and waits for them to return.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

type event struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	SelfID      json.Number     `json:"self_id"`
	UserID      json.Number     `json:"user_id"`
	GroupID     json.Number     `json:"group_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if !s.verify(r.Header.Get(signatureHeader), body) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	// reply before handling: the host must not wait for downloads
	w.WriteHeader(http.StatusNoContent)

	if ev.PostType != "message" {
		return
	}

	msg := toMessage(&ev)
	h := s.match(msg.Text)
	if h == nil {
		return
	}

	reqID := uuid.New().String()
	s.logger.Debug().Str("request_id", reqID).Str("user_id", msg.UserID).Str("group_id", msg.GroupID).Msg("Dispatch message")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		h(s.logger.With().Str("request_id", reqID).Logger().WithContext(s.ctx), msg)
	}()
}

func (s *Server) match(text string) ports.HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rt := range s.routes {
		if rt.pattern.MatchString(text) {
			return rt.handler
		}
	}
	return nil
}

// verify checks the "sha1=<hex>" HMAC signature when a secret is configured.
func (s *Server) verify(signature string, body []byte) bool {
	if s.secret == "" {
		return true
	}
	sig, ok := strings.CutPrefix(signature, "sha1=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(s.secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func toMessage(ev *event) domain.Message {
	msg := domain.Message{
		SelfID: ev.SelfID.String(),
		UserID: ev.UserID.String(),
		Text:   ev.RawMessage,
	}
	if ev.MessageType == "group" {
		msg.GroupID = ev.GroupID.String()
	}
	if msg.Text == "" {
		msg.Text = plainText(ev.Message)
	}
	return msg
}

// plainText extracts text from a message that is either a CQ string or a
// segment array.
func plainText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}

	var segs []struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &segs); err != nil {
		return ""
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.Type != "text" {
			continue
		}
		if text, ok := seg.Data["text"].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}
