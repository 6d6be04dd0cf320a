package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/trezcool/ulms/core"
)

// Logger records every message instead of printing it.
type Logger struct {
	mu      sync.Mutex
	entries []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("FATAL", msg) }

func (l *Logger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether any entry of the given level holds substr.
func (l *Logger) Contains(level, substr string) bool {
	for _, e := range l.Entries() {
		if strings.HasPrefix(e, level+": ") && strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

// SolidImage returns a w*h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func PNGBytes(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("PNGBytes() failed: %v", err)
	}
	return buf.Bytes()
}

// Verifier is a fake face-verification service speaking the websocket wire protocol.
type Verifier struct {
	*httptest.Server

	mu       sync.Mutex
	received [][]byte
	conns    []*websocket.Conn
	headers  []http.Header
	reply    func(msg []byte) [][]byte
}

// NewVerifier starts a verifier answering every frame with whatever reply returns. A nil reply never answers.
func NewVerifier(t *testing.T, reply func(msg []byte) [][]byte) *Verifier {
	v := &Verifier{reply: reply}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	v.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Verifier.Upgrade() failed: %v", err)
			return
		}
		v.mu.Lock()
		v.conns = append(v.conns, conn)
		v.headers = append(v.headers, r.Header.Clone())
		v.mu.Unlock()
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			v.mu.Lock()
			v.received = append(v.received, msg)
			v.mu.Unlock()
			if v.reply == nil {
				continue
			}
			for _, out := range v.reply(msg) {
				v.mu.Lock()
				err = conn.WriteMessage(websocket.TextMessage, out)
				v.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(v.Server.Close)
	return v
}

// URL returns the ws:// address of the verifier.
func (v *Verifier) URL() string {
	return "ws" + strings.TrimPrefix(v.Server.URL, "http")
}

func (v *Verifier) Received() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.received))
	copy(out, v.received)
	return out
}

// Handshakes returns the request headers of every accepted connection.
func (v *Verifier) Handshakes() []http.Header {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]http.Header, len(v.headers))
	copy(out, v.headers)
	return out
}

// Push sends raw to every connected client.
func (v *Verifier) Push(raw string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client connection abruptly.
func (v *Verifier) DropConnections() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.conns {
		_ = c.Close()
	}
	v.conns = nil
}

func VerificationJSON(match, multiple bool, count int, errMsg string) []byte {
	errField := ""
	if errMsg != "" {
		errField = fmt.Sprintf(`,"error":%q`, errMsg)
	}
	return []byte(fmt.Sprintf(
		`{"match":%t,"multiple_faces":%t,"face_count":%d%s,"type":"verification","timestamp":1700000000}`,
		match, multiple, count, errField,
	))
}
