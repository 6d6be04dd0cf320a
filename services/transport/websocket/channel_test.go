package wstransport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulms/core/proctor"
	"github.com/trezcool/ulms/tests"
)

var frame = proctor.FrameEmission{ReferenceImage: "data:image/jpeg;base64,cmVm", FrameImage: "data:image/png;base64,ZnJhbWU="}

func receive(t *testing.T, ch <-chan proctor.VerificationResponse) (proctor.VerificationResponse, bool) {
	t.Helper()
	select {
	case resp, ok := <-ch:
		return resp, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a response")
		return proctor.VerificationResponse{}, false
	}
}

func TestChannel_roundTrip(t *testing.T) {
	verifier := testutil.NewVerifier(t, func([]byte) [][]byte {
		return [][]byte{testutil.VerificationJSON(false, false, 0, "")}
	})
	ch := New(Options{URL: verifier.URL(), Logger: testutil.NewLogger()})
	defer ch.Close()

	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Open(context.Background()), "opening twice is a no-op")
	assert.True(t, ch.Connected())

	require.NoError(t, ch.Send(frame))
	resp, ok := receive(t, ch.Responses())
	require.True(t, ok)
	assert.Equal(t, 0, resp.FaceCount)
	assert.Equal(t, "verification", resp.Type)

	require.Len(t, verifier.Received(), 1)
	var sent map[string]string
	require.NoError(t, json.Unmarshal(verifier.Received()[0], &sent))
	assert.Equal(t, map[string]string{
		"reference_image": frame.ReferenceImage,
		"frame_image":     frame.FrameImage,
	}, sent)
	assert.Len(t, verifier.Handshakes(), 1)
	assert.Empty(t, verifier.Handshakes()[0].Get("Authorization"))
}

func TestChannel_malformedResponsesAreDropped(t *testing.T) {
	verifier := testutil.NewVerifier(t, func([]byte) [][]byte {
		return [][]byte{
			[]byte("not json"),
			[]byte(`{"face_count":"two"}`),
			testutil.VerificationJSON(true, false, 1, "low light"),
		}
	})
	logger := testutil.NewLogger()
	ch := New(Options{URL: verifier.URL(), Logger: logger})
	defer ch.Close()
	require.NoError(t, ch.Open(context.Background()))

	require.NoError(t, ch.Send(frame))
	resp, ok := receive(t, ch.Responses())
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "low light", *resp.Error)
	assert.True(t, logger.Contains("WARN", "dropping malformed verification response"))
	assert.True(t, ch.Connected(), "bad messages never drop the connection")
}

func TestChannel_ordering(t *testing.T) {
	verifier := testutil.NewVerifier(t, nil)
	ch := New(Options{URL: verifier.URL()})
	defer ch.Close()
	require.NoError(t, ch.Open(context.Background()))
	require.NoError(t, ch.Send(frame))
	require.Eventually(t, func() bool { return len(verifier.Received()) == 1 }, time.Second, time.Millisecond)

	for _, count := range []int{0, 3, 1} {
		require.NoError(t, verifier.Push(string(testutil.VerificationJSON(true, false, count, ""))))
	}
	for _, want := range []int{0, 3, 1} {
		resp, ok := receive(t, ch.Responses())
		require.True(t, ok)
		assert.Equal(t, want, resp.FaceCount)
	}
}

func TestChannel_Send(t *testing.T) {
	ch := New(Options{URL: "ws://127.0.0.1:1"})
	assert.Equal(t, proctor.ErrNotConnected, ch.Send(frame))
	assert.False(t, ch.Connected())

	require.NoError(t, ch.Close())
	assert.Equal(t, proctor.ErrChannelClosed, ch.Send(frame))
}

func TestChannel_Open(t *testing.T) {
	tests := []struct {
		name     string
		opts     func(url string) Options
		wantAuth string
		wantErr  bool
	}{
		{
			name:     "static token",
			opts:     func(url string) Options { return Options{URL: url, Token: "abc"} },
			wantAuth: "Bearer abc",
		},
		{
			name: "issued token",
			opts: func(url string) Options {
				return Options{URL: url, TokenFunc: func() (string, error) { return "issued", nil }}
			},
			wantAuth: "Bearer issued",
		},
		{
			name: "static token wins",
			opts: func(url string) Options {
				return Options{URL: url, Token: "abc", TokenFunc: func() (string, error) { return "issued", nil }}
			},
			wantAuth: "Bearer abc",
		},
		{
			name: "token error",
			opts: func(url string) Options {
				return Options{URL: url, TokenFunc: func() (string, error) { return "", assert.AnError }}
			},
			wantErr: true,
		},
		{
			name:    "unreachable",
			opts:    func(string) Options { return Options{URL: "ws://127.0.0.1:1", HandshakeTimeout: time.Second} },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := testutil.NewVerifier(t, nil)
			ch := New(tt.opts(verifier.URL()))
			defer ch.Close()

			err := ch.Open(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, ch.Connected())
				return
			}
			require.NoError(t, err)
			require.Eventually(t, func() bool { return len(verifier.Handshakes()) == 1 }, time.Second, time.Millisecond)
			assert.Equal(t, tt.wantAuth, verifier.Handshakes()[0].Get("Authorization"))
		})
	}
}

func TestChannel_connectionLost(t *testing.T) {
	verifier := testutil.NewVerifier(t, nil)
	logger := testutil.NewLogger()
	ch := New(Options{URL: verifier.URL(), Logger: logger})
	defer ch.Close()
	require.NoError(t, ch.Open(context.Background()))
	require.Eventually(t, func() bool { return len(verifier.Handshakes()) == 1 }, time.Second, time.Millisecond)

	verifier.DropConnections()
	_, ok := receive(t, ch.Responses())
	assert.False(t, ok, "responses close when the connection is lost")
	assert.False(t, ch.Connected())
	assert.True(t, logger.Contains("WARN", "verification channel lost"))

	assert.Equal(t, proctor.ErrNotConnected, ch.Send(frame))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, verifier.Handshakes(), 1, "no reconnection is attempted")
}

func TestChannel_Close(t *testing.T) {
	verifier := testutil.NewVerifier(t, nil)
	logger := testutil.NewLogger()
	ch := New(Options{URL: verifier.URL(), Logger: logger})
	require.NoError(t, ch.Open(context.Background()))

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "closing twice has no further effect")
	assert.False(t, ch.Connected())
	_, ok := receive(t, ch.Responses())
	assert.False(t, ok)
	assert.False(t, logger.Contains("WARN", "verification channel lost"), "a requested close is not a loss")

	assert.Equal(t, proctor.ErrChannelClosed, ch.Send(frame))
	assert.Equal(t, proctor.ErrChannelClosed, ch.Open(context.Background()))
}

func TestChannel_closeNeverOpened(t *testing.T) {
	ch := New(Options{URL: "ws://127.0.0.1:1"})
	require.NoError(t, ch.Close())
	_, ok := receive(t, ch.Responses())
	assert.False(t, ok)
}

func TestChannel_writeTimeout(t *testing.T) {
	assert.Equal(t, defaultWriteTimeout, New(Options{}).opts.WriteTimeout)

	verifier := testutil.NewVerifier(t, nil)
	ch := New(Options{URL: verifier.URL(), WriteTimeout: time.Nanosecond})
	defer ch.Close()
	require.NoError(t, ch.Open(context.Background()))

	err := ch.Send(frame)
	require.Error(t, err, "a write past its deadline fails instead of hanging")
	assert.Contains(t, err.Error(), "writing frame")
	assert.False(t, ch.Connected())
}

func TestChannel_closeWithStalledWriter(t *testing.T) {
	verifier := testutil.NewVerifier(t, nil)
	ch := New(Options{URL: verifier.URL()})
	require.NoError(t, ch.Open(context.Background()))

	// a writer stuck in Send holds the write lock
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	closed := make(chan struct{})
	go func() {
		_ = ch.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited for the stalled writer")
	}
	assert.False(t, ch.Connected())
}
