package reportsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/proctor"
)

const (
	feedQoS        = 1
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTFeed publishes alerts live to <topic>/<examId> for invigilator dashboards.
type MQTTFeed struct {
	topic  string
	client mqtt.Client
	logger core.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	failed    uint64
}

var _ proctor.Notifier = (*MQTTFeed)(nil)

type FeedStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// NewMQTTFeed configures a client for broker (host:port or a full URL). Call Connect before use.
func NewMQTTFeed(broker, clientID, topic string, logger core.Logger) *MQTTFeed {
	f := &MQTTFeed{topic: strings.TrimRight(topic, "/"), logger: logger}
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		f.setConnected(true)
		f.logger.Info("alert feed connected: " + broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		f.setConnected(false)
		f.logger.Warn(fmt.Sprintf("alert feed connection lost: %v", err), err)
	}
	f.client = mqtt.NewClient(opts)
	return f
}

func newMQTTFeedWithClient(client mqtt.Client, topic string, logger core.Logger) *MQTTFeed {
	return &MQTTFeed{topic: strings.TrimRight(topic, "/"), client: client, logger: logger, connected: client.IsConnected()}
}

func (f *MQTTFeed) Connect() error {
	token := f.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("alert feed connection timeout")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "connecting alert feed")
	}
	f.setConnected(true)
	return nil
}

// Topic is where alerts of the given exam are published.
func (f *MQTTFeed) Topic(examID string) string {
	return f.topic + "/" + examID
}

func (f *MQTTFeed) Notify(ctx context.Context, alert proctor.SuspiciousAlert) error {
	if !f.isConnected() {
		f.fail()
		return errors.New("alert feed not connected")
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		f.fail()
		return errors.Wrap(err, "encoding alert")
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	token := f.client.Publish(f.Topic(alert.ExamID), feedQoS, false, payload)
	if !token.WaitTimeout(timeout) {
		f.fail()
		return errors.New("alert feed publish timeout")
	}
	if err = token.Error(); err != nil {
		f.fail()
		return errors.Wrap(err, "publishing alert")
	}

	f.mu.Lock()
	f.published++
	f.mu.Unlock()
	return nil
}

func (f *MQTTFeed) Disconnect() {
	if f.client.IsConnected() {
		f.client.Disconnect(250)
	}
	f.setConnected(false)
}

func (f *MQTTFeed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStats{Connected: f.connected, Published: f.published, Failed: f.failed}
}

func (f *MQTTFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *MQTTFeed) isConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *MQTTFeed) fail() {
	f.mu.Lock()
	f.failed++
	f.mu.Unlock()
}
