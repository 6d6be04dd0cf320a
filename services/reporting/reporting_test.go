package reportsvc

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulms/core/proctor"
	"github.com/trezcool/ulms/tests"
)

var alert = proctor.SuspiciousAlert{
	ID:          "a-1",
	Type:        proctor.AlertNoFace,
	Message:     "No face detected in the frame",
	Timestamp:   1700000000000,
	Severity:    proctor.SeverityHigh,
	StudentID:   "s-1",
	StudentName: "Amani",
	ExamID:      "7",
}

func TestHTTPReporter_Notify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusCreated},
		{name: "rejected", status: http.StatusBadRequest, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotPath   string
				gotMethod string
				gotType   string
				gotBody   []byte
				calls     int
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				gotPath, gotMethod, gotType = r.URL.Path, r.Method, r.Header.Get("Content-Type")
				gotBody, _ = ioutil.ReadAll(r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			mock := clock.NewMock()
			mock.Set(time.Unix(1700000005, 0))
			reporter := NewHTTPReporter(srv.URL+"/api/", srv.Client(), mock)

			err := reporter.Notify(context.Background(), alert)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, calls, "reports are never retried")
			assert.Equal(t, "/api/exam/suspicious-activity", gotPath)
			assert.Equal(t, http.MethodPost, gotMethod)
			assert.Equal(t, "application/json", gotType)

			var report Report
			require.NoError(t, json.Unmarshal(gotBody, &report))
			assert.Equal(t, Report{ExamID: "7", StudentID: "s-1", Alert: alert, Timestamp: 1700000005000}, report)
		})
	}
}

func TestHTTPReporter_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPReporter(url, nil, nil).Notify(context.Background(), alert)
	assert.Error(t, err)
}

func TestHTTPReporter_cancelled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewHTTPReporter(srv.URL, srv.Client(), nil).Notify(ctx, alert)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), err.Error())
	assert.Zero(t, calls)
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t fakeToken) Wait() bool                     { return !t.timeout }
func (t fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t fakeToken) Error() error                   { return t.err }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	token     fakeToken
	messages  []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = c.token.err == nil
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func TestMQTTFeed_Notify(t *testing.T) {
	client := &fakeClient{connected: true}
	feed := newMQTTFeedWithClient(client, "ulms/proctoring/alerts/", testutil.NewLogger())

	require.NoError(t, feed.Notify(context.Background(), alert))
	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "ulms/proctoring/alerts/7", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got proctor.SuspiciousAlert
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, alert, got)
	assert.Equal(t, FeedStats{Connected: true, Published: 1}, feed.Stats())
}

func TestMQTTFeed_failures(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		token     fakeToken
	}{
		{name: "not connected"},
		{name: "publish error", connected: true, token: fakeToken{err: errors.New("broker said no")}},
		{name: "publish timeout", connected: true, token: fakeToken{timeout: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{connected: tt.connected, token: tt.token}
			feed := newMQTTFeedWithClient(client, "alerts", testutil.NewLogger())

			assert.Error(t, feed.Notify(context.Background(), alert))
			assert.Equal(t, uint64(1), feed.Stats().Failed)
			assert.Equal(t, uint64(0), feed.Stats().Published)
		})
	}
}

func TestMQTTFeed_Connect(t *testing.T) {
	client := &fakeClient{}
	feed := newMQTTFeedWithClient(client, "alerts", testutil.NewLogger())
	require.NoError(t, feed.Connect())
	assert.True(t, feed.Stats().Connected)

	feed.Disconnect()
	assert.False(t, feed.Stats().Connected)
	assert.False(t, client.connected)

	failing := newMQTTFeedWithClient(&fakeClient{token: fakeToken{err: errors.New("refused")}}, "alerts", testutil.NewLogger())
	assert.Error(t, failing.Connect())
	assert.False(t, failing.Stats().Connected)
}

func TestNewMQTTFeed(t *testing.T) {
	feed := NewMQTTFeed("localhost:1883", "ulms-test", "alerts", testutil.NewLogger())
	assert.Equal(t, "alerts/42", feed.Topic("42"))
	assert.False(t, feed.Stats().Connected)
	assert.Error(t, feed.Notify(context.Background(), alert), "publishing before Connect fails fast")
}
