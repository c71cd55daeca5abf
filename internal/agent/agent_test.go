package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/quito/pkg/broker"
	"github.com/saaga0h/quito/pkg/config"
	"github.com/saaga0h/quito/pkg/mqtt"
	"github.com/saaga0h/quito/pkg/profile"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	opts         broker.Options
	connectErr   error
	connected    bool
	subscribed   map[string]byte
	handlers     map[string]mqtt.MessageHandler
	published    []published
	disconnected bool
}

func (f *fakeClient) Connect(context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Disconnect() { f.connected = false; f.disconnected = true }

func (f *fakeClient) Subscribe(topic string, qos byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = qos
	f.handlers[topic] = h
	return nil
}

func (f *fakeClient) Unsubscribe(...string) error { return nil }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retained, payload})
	return nil
}

func (f *fakeClient) IsConnected() bool       { return f.connected }
func (f *fakeClient) Options() broker.Options { return f.opts }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) QoS() byte       { return 0 }
func (m fakeMessage) Retained() bool  { return false }
func (m fakeMessage) Ack()            {}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestAgent(t *testing.T, cfg *config.Config, store profile.Store) (*Agent, *fakeClient, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := testLogger(&buf)
	client := &fakeClient{
		subscribed: make(map[string]byte),
		handlers:   make(map[string]mqtt.MessageHandler),
	}
	registry := mqtt.NewRegistry(logger, LogEvents(logger), mqtt.WithClientFactory(
		func(opts broker.Options, _ *slog.Logger, _ ...mqtt.ClientOption) (mqtt.Client, error) {
			client.opts = opts
			return client, nil
		}))

	a := NewAgent(registry, store, cfg, logger)
	a.genID = broker.StaticID("quito-go-test")
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return a, client, &buf
}

func TestAgent_ConnectSubscribesAndAnnounces(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Broker.URI = "mqtt://broker:1883"
	cfg.Topics = []string{"devices/+/state", "bad/#/filter", "alerts/#"}
	cfg.SubscribeQoS = 1
	cfg.AnnounceTopic = "quito/agents/online"

	a, client, _ := newTestAgent(t, cfg, nil)
	require.NoError(t, a.connect(context.Background()))

	assert.True(t, client.connected)
	assert.Equal(t, "broker", client.opts.Host)
	assert.Equal(t, "quito-go-test", client.opts.ClientID)
	assert.Equal(t, map[string]byte{"devices/+/state": 1, "alerts/#": 1}, client.subscribed)

	require.Len(t, client.published, 1)
	assert.Equal(t, "quito/agents/online", client.published[0].topic)
	assert.Equal(t, byte(1), client.published[0].qos)

	var ann Announcement
	require.NoError(t, json.Unmarshal(client.published[0].payload, &ann))
	assert.Equal(t, Announcement{
		Service:   "quito-agent",
		ClientID:  "quito-go-test",
		Broker:    "tcp://broker:1883",
		Status:    "online",
		Timestamp: "2026-03-01T12:00:00Z",
	}, ann)

	require.NoError(t, a.Stop())
	assert.True(t, client.disconnected)
}

func TestAgent_HandleMessageLogs(t *testing.T) {
	cfg := config.NewConfig()
	a, client, buf := newTestAgent(t, cfg, nil)
	require.NoError(t, a.connect(context.Background()))

	handler := client.handlers["quito/#"]
	require.NotNil(t, handler)
	handler(fakeMessage{topic: "quito/x", payload: []byte("hello")})

	assert.Contains(t, buf.String(), "Received MQTT message")
	assert.Contains(t, buf.String(), "topic=quito/x")
	assert.Contains(t, buf.String(), "payload=hello")
}

func TestAgent_ConnectFailure(t *testing.T) {
	cfg := config.NewConfig()
	a, client, _ := newTestAgent(t, cfg, nil)
	client.connectErr = errors.New("connection refused")

	err := a.connect(context.Background())
	assert.ErrorContains(t, err, "failed to connect to MQTT")
}

func TestAgent_InvalidBrokerConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Broker.URI = "sssl://broker:8883"

	a, _, _ := newTestAgent(t, cfg, nil)
	err := a.connect(context.Background())

	var unknown *broker.UnknownProtocolError
	assert.ErrorAs(t, err, &unknown)
}

func TestAgent_StartBlocksUntilCancelled(t *testing.T) {
	cfg := config.NewConfig()
	a, _, _ := newTestAgent(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestAgent_Profiles(t *testing.T) {
	mr := miniredis.RunT(t)
	store := profile.NewRedisStore(profile.Options{Addr: mr.Addr()}, nil)
	ctx := context.Background()

	keepalive := 10
	require.NoError(t, store.Save(ctx, "lab", broker.Settings{
		URI:          "ssl://lab.example.com:8883",
		ClientID:     "lab-client",
		KeepaliveSec: &keepalive,
	}))

	cfg := config.NewConfig()
	cfg.RedisEnabled = true
	cfg.Profile = "lab"
	cfg.SaveProfile = "lab-v5"
	cfg.Broker.ProtocolLevel = 5
	cfg.Broker.Password = "token"

	a, client, _ := newTestAgent(t, cfg, store)
	require.NoError(t, a.connect(ctx))

	assert.Equal(t, "lab.example.com", client.opts.Host)
	assert.Equal(t, broker.ProtocolTCPTLS, client.opts.Protocol)
	assert.Equal(t, "lab-client", client.opts.ClientID)
	assert.Equal(t, 10*time.Second, client.opts.KeepAlive)
	assert.Equal(t, 5, client.opts.ProtocolLevel)

	saved, err := store.Load(ctx, "lab-v5")
	require.NoError(t, err)
	assert.Equal(t, "ssl://lab.example.com:8883", saved.Settings.URI)
	assert.Equal(t, 5, saved.Settings.ProtocolLevel)
	assert.Empty(t, saved.Settings.Password)

	require.NoError(t, a.Stop())
}

func TestAgent_ProfileWithoutStore(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Profile = "lab"

	a, _, _ := newTestAgent(t, cfg, nil)
	assert.ErrorContains(t, a.connect(context.Background()), "profile store is disabled")
}

func TestAgent_MissingProfile(t *testing.T) {
	mr := miniredis.RunT(t)
	store := profile.NewRedisStore(profile.Options{Addr: mr.Addr()}, nil)

	cfg := config.NewConfig()
	cfg.Profile = "nope"

	a, _, _ := newTestAgent(t, cfg, store)
	err := a.connect(context.Background())
	assert.True(t, errors.Is(err, profile.ErrProfileNotFound))
}

func TestMergeSettings(t *testing.T) {
	port := 1884
	base := broker.Settings{Host: "old", Port: &port, Protocol: "ws", ClientID: "keep"}
	top := broker.Settings{URI: "tcp://new:1883", Username: "u"}

	got := mergeSettings(base, top)
	assert.Equal(t, broker.Settings{URI: "tcp://new:1883", ClientID: "keep", Username: "u"}, got)
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	handler := LogEvents(testLogger(&buf))

	handler(mqtt.Event{Kind: mqtt.EventConnected, ClientRef: "r1", BrokerURL: "tcp://h:1883"})
	handler(mqtt.Event{Kind: mqtt.EventException, ClientRef: "r1", Err: errors.New("boom")})
	handler(mqtt.Event{Kind: mqtt.EventMessageReceived, ClientRef: "r1", Topics: []string{"a/b"}, Payload: []byte("xy")})

	out := buf.String()
	assert.Contains(t, out, "level=INFO msg=\"MQTT client event\" event=CONNECTED client_ref=r1 broker=tcp://h:1883")
	assert.Contains(t, out, "level=WARN msg=\"MQTT client event\" event=EXCEPTION client_ref=r1 error=boom")
	assert.Contains(t, out, "event=MESSAGE_RECEIVED")
	assert.Contains(t, out, "size=2")
}
