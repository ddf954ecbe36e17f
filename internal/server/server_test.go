package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/skinmatch/platform/internal/catalogue"
	"github.com/skinmatch/platform/internal/descriptor"
	"github.com/skinmatch/platform/internal/matcher"
	"github.com/skinmatch/platform/internal/pixel"
	"github.com/skinmatch/platform/internal/retrieval"
	"github.com/skinmatch/platform/internal/scoring"
)

func solidImage(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encodePNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(c)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ext := descriptor.NewExtractor(descriptor.DefaultOptions())
	store := catalogue.NewStore()
	items := []struct {
		id   string
		slot catalogue.Slot
		c    color.NRGBA
	}{
		{"red-cape", catalogue.SlotCape, color.NRGBA{R: 220, G: 30, B: 30, A: 255}},
		{"blue-cape", catalogue.SlotCape, color.NRGBA{R: 30, G: 30, B: 220, A: 255}},
		{"red-hat", catalogue.SlotHeadgear, color.NRGBA{R: 210, G: 40, B: 35, A: 255}},
	}
	for _, it := range items {
		img := solidImage(it.c)
		buf := &pixel.Buffer{Width: 16, Height: 16, Pix: img.Pix}
		if err := store.Put(catalogue.Item{ID: it.id, Name: it.id, Slot: it.slot, Descriptor: ext.Extract(buf)}); err != nil {
			t.Fatal(err)
		}
	}
	driver := retrieval.NewDriver(scoring.NewScorer(scoring.DefaultPolicy()), retrieval.Options{TopK: 5, Workers: 2})
	s := New(matcher.New(store, ext, driver, matcher.Config{}))
	s.SetReady(true)
	return s
}

type errorBody struct {
	Error ErrorMessage `json:"error"`
}

type matchBody struct {
	Slots []struct {
		Slot    string `json:"slot"`
		Scanned int    `json:"scanned"`
		Matches []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"matches"`
	} `json:"slots"`
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}

	req = httptest.NewRequest("GET", "/test", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("GET status = %d, want handler status", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected inside the limit", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit allowed")
	}

	rl.timestamps = []time.Time{time.Now().Add(-2 * RateLimitWindow)}
	if !rl.allow() {
		t.Error("expired timestamps should not count")
	}
	if len(rl.timestamps) != 1 {
		t.Errorf("timestamps = %d, want 1 after pruning", len(rl.timestamps))
	}
}

func TestCatalogueEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/catalogue", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp CatalogueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Ready || resp.Items != 3 || resp.Slots[catalogue.SlotCape] != 2 || resp.Slots[catalogue.SlotHeadgear] != 1 {
		t.Errorf("catalogue = %+v", resp)
	}
	if rec.Header().Get("x-trace-id") == "" {
		t.Error("trace middleware should set x-trace-id")
	}
}

func TestDescribeEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := encodePNG(t, color.NRGBA{R: 255, A: 255})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/describe", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Descriptor descriptor.Descriptor `json:"descriptor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	p, ok := resp.Descriptor.Palette.Get()
	if !ok || len(p) != 1 || p[0].Hex != "#FF0000" {
		t.Errorf("palette = %+v", p)
	}
}

func TestDescribeRejectsGarbage(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty", "", "IMAGE_EMPTY"},
		{"not an image", "hello", "IMAGE_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/describe", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var eb errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil {
				t.Fatal(err)
			}
			if eb.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", eb.Error.Code, tt.code)
			}
		})
	}
}

func TestMatchEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := encodePNG(t, color.NRGBA{R: 225, G: 25, B: 30, A: 255})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/match?slot=cape&k=1", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var resp matchBody
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].Slot != "cape" {
		t.Fatalf("slots = %+v", resp.Slots)
	}
	if m := resp.Slots[0].Matches; len(m) != 1 || m[0].ID != "red-cape" {
		t.Errorf("matches = %+v", m)
	}
	if resp.Slots[0].Scanned != 2 {
		t.Errorf("scanned = %d, want 2", resp.Slots[0].Scanned)
	}
}

func TestMatchEndpointErrors(t *testing.T) {
	s := newTestServer(t)
	body := encodePNG(t, color.NRGBA{R: 200, A: 255})

	tests := []struct {
		name   string
		query  string
		ready  bool
		status int
		code   string
	}{
		{"not ready", "", false, http.StatusServiceUnavailable, "CATALOGUE_UNAVAILABLE"},
		{"bad k", "?k=abc", true, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"k too large", "?k=500", true, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetReady(tt.ready)
			defer s.SetReady(true)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/match"+tt.query, bytes.NewReader(body)))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var eb errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil {
				t.Fatal(err)
			}
			if eb.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", eb.Error.Code, tt.code)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"cape, pet", "", "shield"})
	want := []string{"cape", "pet", "shield"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMessageTypes(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"start", StartMessage{Type: "start", TraceID: "abc", Slots: []catalogue.Slot{"cape"}}, `{"type":"start","trace_id":"abc","slots":["cape"]}`},
		{"error", ErrorMessage{Type: "error", Code: "IMAGE_EMPTY", Message: "empty"}, `{"type":"error","code":"IMAGE_EMPTY","message":"empty"}`},
		{"match request", MatchRequest{Type: "match", Image: "eA=="}, `{"type":"match","image":"eA=="}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("json = %s, want %s", data, tt.want)
			}
		})
	}
}

func dialWS(t *testing.T, s *Server) (context.Context, *websocket.Conn) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return ctx, conn
}

func TestWebSocketMatchStream(t *testing.T) {
	s := newTestServer(t)
	ctx, conn := dialWS(t, s)

	img := base64.StdEncoding.EncodeToString(encodePNG(t, color.NRGBA{R: 225, G: 25, B: 30, A: 255}))
	req := MatchRequest{Type: "match", Image: img, Slots: []string{"cape", "headgear"}, TopK: 1, TraceID: "0123456789abcdef0123456789abcdef"}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatal(err)
	}

	var start StartMessage
	if err := wsjson.Read(ctx, conn, &start); err != nil {
		t.Fatal(err)
	}
	if start.Type != "start" || len(start.Slots) != 2 {
		t.Fatalf("start = %+v", start)
	}
	if start.TraceID != req.TraceID {
		t.Errorf("trace id = %q, want %q", start.TraceID, req.TraceID)
	}

	for _, want := range []string{"red-cape", "red-hat"} {
		var msg struct {
			Type   string `json:"type"`
			Result struct {
				Matches []struct {
					ID string `json:"id"`
				} `json:"matches"`
			} `json:"result"`
		}
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "slot" || len(msg.Result.Matches) != 1 || msg.Result.Matches[0].ID != want {
			t.Errorf("slot message = %+v, want top %s", msg, want)
		}
	}

	var done Message
	if err := wsjson.Read(ctx, conn, &done); err != nil {
		t.Fatal(err)
	}
	if done.Type != "done" {
		t.Errorf("final message type = %q, want done", done.Type)
	}
}

func TestWebSocketErrors(t *testing.T) {
	s := newTestServer(t)
	ctx, conn := dialWS(t, s)

	tests := []struct {
		name string
		msg  any
		code string
	}{
		{"unknown type", map[string]string{"type": "subscribe"}, "INVALID_ARGUMENT"},
		{"bad base64", MatchRequest{Type: "match", Image: "!!"}, "IMAGE_INVALID"},
		{"bad top k", MatchRequest{Type: "match", Image: "eA==", TopK: MaxTopK + 1}, "INVALID_ARGUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := wsjson.Write(ctx, conn, tt.msg); err != nil {
				t.Fatal(err)
			}
			var em ErrorMessage
			if err := wsjson.Read(ctx, conn, &em); err != nil {
				t.Fatal(err)
			}
			if em.Type != "error" || em.Code != tt.code {
				t.Errorf("error = %+v, want code %s", em, tt.code)
			}
		})
	}
}
