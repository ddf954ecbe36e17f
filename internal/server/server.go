package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	apperrors "github.com/skinmatch/platform/internal/errors"
	"github.com/skinmatch/platform/internal/matcher"
	"github.com/skinmatch/platform/internal/pixel"
	"github.com/skinmatch/platform/internal/retrieval"
	"github.com/skinmatch/platform/internal/trace"
)

// Service is the matching surface the server needs.
type Service interface {
	Store() catalogue.Store
	ParseSlots(names []string) ([]catalogue.Slot, error)
	Describe(ctx context.Context, buf *pixel.Buffer) descriptor.Descriptor
	Match(ctx context.Context, buf *pixel.Buffer, slots []catalogue.Slot, k int) (matcher.Result, error)
	MatchStream(ctx context.Context, buf *pixel.Buffer, slots []catalogue.Slot, k int, emit func(retrieval.SlotResult) error) (descriptor.Descriptor, error)
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

// MatchRequest asks for a ranking over a base64 encoded image.
type MatchRequest struct {
	Type    string   `json:"type"`
	Image   string   `json:"image"`
	Slots   []string `json:"slots,omitempty"`
	TopK    int      `json:"top_k,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
}

type StartMessage struct {
	Type    string           `json:"type"`
	TraceID string           `json:"trace_id"`
	Slots   []catalogue.Slot `json:"slots"`
}

type SlotMessage struct {
	Type   string               `json:"type"`
	Result retrieval.SlotResult `json:"result"`
}

type DoneMessage struct {
	Type      string                `json:"type"`
	Reference descriptor.Descriptor `json:"reference"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CatalogueResponse describes what can be matched against.
type CatalogueResponse struct {
	Ready bool                   `json:"ready"`
	Items int                    `json:"items"`
	Slots map[catalogue.Slot]int `json:"slots"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	svc   Service
	ready atomic.Bool
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server. It reports not ready until SetReady(true).
func New(svc Service) *Server {
	return &Server{
		svc:   svc,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// SetReady marks whether the catalogue has finished loading.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/catalogue", s.handleCatalogue)
	mux.HandleFunc("POST /api/describe", s.handleDescribe)
	mux.HandleFunc("POST /api/match", s.handleMatch)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// Close ends every open websocket.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	store := s.svc.Store()
	writeJSON(w, http.StatusOK, CatalogueResponse{
		Ready: s.ready.Load(),
		Items: store.Len(),
		Slots: store.Counts(),
	})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	buf, err := readImage(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]descriptor.Descriptor{
		"descriptor": s.svc.Describe(r.Context(), buf),
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(r.Context(), w, apperrors.New(apperrors.CodeCatalogueUnavailable, "catalogue is still loading"))
		return
	}
	q := r.URL.Query()
	slots, err := s.svc.ParseSlots(splitList(q["slot"]))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	k, err := parseTopK(q.Get("k"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	buf, err := readImage(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res, err := s.svc.Match(r.Context(), buf, slots, k)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(WSReadLimit)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	rl := &rateLimiter{}
	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			_ = wsjson.Write(baseCtx, conn, errorMessage(apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed message")))
			continue
		}

		switch base.Type {
		case "match":
			var req MatchRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				_ = wsjson.Write(baseCtx, conn, errorMessage(apperrors.Wrap(err, apperrors.CodeInvalidArgument, "malformed match request")))
				continue
			}
			ctx := baseCtx
			if tc, ok := trace.ExtractFromJSON(msg); ok {
				ctx = trace.WithContext(ctx, tc)
			} else {
				ctx, _ = trace.EnsureContext(ctx)
			}
			s.handleMatchMessage(ctx, conn, req)
		default:
			_ = wsjson.Write(baseCtx, conn, errorMessage(apperrors.Newf(apperrors.CodeInvalidArgument, "unknown message type %q", base.Type)))
		}
	}
}

func (s *Server) handleMatchMessage(ctx context.Context, conn *websocket.Conn, req MatchRequest) {
	ctx, span := trace.StartSpan(ctx, "ws_match")
	defer span.End()
	log := trace.Logger(ctx)

	fail := func(err error) {
		span.SetAttr("error", err.Error())
		log.Warn("match failed", "error", err)
		_ = wsjson.Write(ctx, conn, errorMessage(err))
	}

	if !s.ready.Load() {
		fail(apperrors.New(apperrors.CodeCatalogueUnavailable, "catalogue is still loading"))
		return
	}
	slots, err := s.svc.ParseSlots(req.Slots)
	if err != nil {
		fail(err)
		return
	}
	if req.TopK < 0 || req.TopK > MaxTopK {
		fail(apperrors.Newf(apperrors.CodeInvalidArgument, "top_k must be between 0 and %d", MaxTopK))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		fail(apperrors.Wrap(err, apperrors.CodeImageInvalid, "image is not base64"))
		return
	}
	buf, err := pixel.DecodeBytes(data)
	if err != nil {
		fail(err)
		return
	}

	tc, _ := trace.FromContext(ctx)
	if err := wsjson.Write(ctx, conn, StartMessage{Type: "start", TraceID: tc.TraceID, Slots: slots}); err != nil {
		return
	}
	ref, err := s.svc.MatchStream(ctx, buf, slots, req.TopK, func(sr retrieval.SlotResult) error {
		return wsjson.Write(ctx, conn, SlotMessage{Type: "slot", Result: sr})
	})
	if err != nil {
		fail(err)
		return
	}
	_ = wsjson.Write(ctx, conn, DoneMessage{Type: "done", Reference: ref})
}

func readImage(r *http.Request) (*pixel.Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxImageBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeImageInvalid, "read image body")
	}
	if len(data) > MaxImageBytes {
		return nil, apperrors.Newf(apperrors.CodeImageInvalid, "image exceeds %d bytes", MaxImageBytes)
	}
	return pixel.DecodeBytes(data)
}

// splitList accepts repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func parseTopK(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(s)
	if err != nil || k < 0 || k > MaxTopK {
		return 0, apperrors.Newf(apperrors.CodeInvalidArgument, "k must be an integer between 0 and %d", MaxTopK).
			WithMetadata("k", s)
	}
	return k, nil
}

func errorMessage(err error) ErrorMessage {
	appErr, ok := apperrors.As(err)
	if !ok {
		return ErrorMessage{Type: "error", Code: apperrors.CodeInternal.String(), Message: err.Error()}
	}
	return ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Message}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if appErr, ok := apperrors.As(err); ok {
		status = appErr.HTTPStatus()
	}
	if status >= http.StatusInternalServerError {
		trace.Logger(ctx).Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]ErrorMessage{"error": errorMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
