package proctor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/trezcool/ulms/tests"
)

type fakeStream struct {
	mu      sync.Mutex
	frame   image.Image
	err     error
	stopped int
}

func (s *fakeStream) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.err
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *fakeStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	opened int
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{stream: &fakeStream{frame: testutil.SolidImage(64, 48, color.RGBA{R: 200, A: 255})}}
}

func (c *fakeCamera) Open(context.Context) (Stream, error) {
	c.opened++
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	openErr   error
	sendErr   error
	sent      []FrameEmission
	responses chan VerificationResponse
	closed    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{responses: make(chan VerificationResponse, 8)}
}

func (ch *fakeChannel) Open(context.Context) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.openErr != nil {
		return ch.openErr
	}
	ch.connected = true
	return nil
}

func (ch *fakeChannel) Send(f FrameEmission) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.connected {
		return ErrNotConnected
	}
	if ch.sendErr != nil {
		return ch.sendErr
	}
	ch.sent = append(ch.sent, f)
	return nil
}

func (ch *fakeChannel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connected
}

func (ch *fakeChannel) setConnected(v bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.connected = v
}

func (ch *fakeChannel) Responses() <-chan VerificationResponse { return ch.responses }

// drop simulates an unexpected close of the connection.
func (ch *fakeChannel) drop() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed == 0 {
		close(ch.responses)
	}
	ch.connected = false
	ch.closed++
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed == 0 {
		close(ch.responses)
	}
	ch.connected = false
	ch.closed++
	return nil
}

func (ch *fakeChannel) sentFrames() []FrameEmission {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]FrameEmission, len(ch.sent))
	copy(out, ch.sent)
	return out
}

var errBoom = errors.New("boom")

// seq returns a deterministic random source cycling over values.
func seq(values ...float64) func() float64 {
	var mu sync.Mutex
	i := 0
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	}
}

func strPtr(s string) *string { return &s }
