package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/saaga0h/quito/pkg/broker"
)

// ErrNotConnected is returned by operations that need an open session
var ErrNotConnected = errors.New("mqtt client is not connected")

// v5Client implements the Client interface using the Paho MQTT 5 client.
// It does not reconnect on its own; after a connection loss IsConnected
// reports false and Connect may be called again.
type v5Client struct {
	opts   broker.Options
	tls    *tls.Config
	cfg    clientConfig
	logger *slog.Logger

	mu        sync.RWMutex
	client    *paho.Client
	handlers  map[string]MessageHandler
	connected atomic.Bool
}

func newV5Client(opts broker.Options, logger *slog.Logger, cfg clientConfig) (*v5Client, error) {
	var tlsCfg *tls.Config
	if opts.TLS {
		var err error
		if tlsCfg, err = TLSConfig(opts); err != nil {
			return nil, err
		}
	}

	return &v5Client{
		opts:     opts,
		tls:      tlsCfg,
		cfg:      cfg,
		logger:   logger.With("client_id", opts.ClientID),
		handlers: make(map[string]MessageHandler),
	}, nil
}

// ConnectPacket builds the MQTT 5 CONNECT packet for the options,
// including will properties
func ConnectPacket(opts broker.Options) *paho.Connect {
	cp := &paho.Connect{
		ClientID:     opts.ClientID,
		KeepAlive:    uint16(opts.KeepAlive / time.Second),
		CleanStart:   opts.CleanSession,
		Username:     opts.Username,
		UsernameFlag: opts.Username != "",
		PasswordFlag: opts.Password != "",
	}
	if opts.Password != "" {
		cp.Password = []byte(opts.Password)
	}

	// Without clean session the broker keeps the session indefinitely
	if !opts.CleanSession {
		expiry := uint32(math.MaxUint32)
		cp.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}

	if w := opts.Will; w != nil {
		cp.WillMessage = &paho.WillMessage{
			Topic:   w.Topic,
			Payload: w.Payload,
			QoS:     w.QoS,
			Retain:  w.Retain,
		}
		if p := w.Properties; p != nil {
			wp := &paho.WillProperties{
				WillDelayInterval: seconds(p.DelayInterval),
				MessageExpiry:     seconds(p.MessageExpiry),
				ContentType:       p.ContentType,
				ResponseTopic:     p.ResponseTopic,
				CorrelationData:   p.CorrelationData,
				User:              userProperties(p.UserProperties),
			}
			if p.PayloadUTF8 {
				format := byte(1)
				wp.PayloadFormat = &format
			}
			cp.WillProperties = wp
		}
	}

	return cp
}

// Connect dials the broker and performs the MQTT 5 handshake
func (v *v5Client) Connect(ctx context.Context) error {
	if v.connected.Load() {
		v.logger.Debug("Already connected to MQTT broker", "broker", v.opts.BrokerURL())
		return nil
	}
	// A session left over from a lost connection is closed before redialing
	if stale := v.detachSession(); stale != nil {
		if err := stale.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			v.logger.Debug("Closing stale session returned error", "error", err)
		}
	}

	v.logger.Info("Connecting to MQTT broker", "broker", v.opts.BrokerURL(), "protocol_level", 5)
	v.cfg.emit(Event{Kind: EventConnecting, BrokerURL: v.opts.BrokerURL()})

	if v.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, v.opts, v.tls)
	if err != nil {
		v.cfg.emit(Event{Kind: EventException, BrokerURL: v.opts.BrokerURL(), Err: err})
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID:          v.opts.ClientID,
		Conn:              conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){v.route},
		OnClientError:     v.onClientError,
		OnServerDisconnect: func(d *paho.Disconnect) {
			v.connected.Store(false)
			err := fmt.Errorf("server disconnected with reason code %d", d.ReasonCode)
			v.logger.Warn("MQTT connection lost", "error", err)
			v.cfg.emit(Event{Kind: EventConnectionLost, BrokerURL: v.opts.BrokerURL(), Err: err})
		},
	})

	connack, err := client.Connect(ctx, ConnectPacket(v.opts))
	if err != nil {
		conn.Close()
		v.cfg.emit(Event{Kind: EventException, BrokerURL: v.opts.BrokerURL(), Err: err})
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	if connack.ReasonCode >= 0x80 {
		conn.Close()
		err := fmt.Errorf("broker refused connection with reason code %d", connack.ReasonCode)
		v.cfg.emit(Event{Kind: EventException, BrokerURL: v.opts.BrokerURL(), Err: err})
		return err
	}

	v.mu.Lock()
	v.client = client
	v.mu.Unlock()
	v.connected.Store(true)

	v.logger.Info("Connected to MQTT broker", "broker", v.opts.BrokerURL())
	v.cfg.emit(Event{Kind: EventConnected, BrokerURL: v.opts.BrokerURL()})
	return nil
}

func (v *v5Client) onClientError(err error) {
	v.connected.Store(false)
	v.logger.Warn("MQTT connection lost", "error", err)
	v.cfg.emit(Event{Kind: EventConnectionLost, BrokerURL: v.opts.BrokerURL(), Err: err})
}

// Disconnect sends DISCONNECT and closes the connection
func (v *v5Client) Disconnect() {
	v.logger.Info("Disconnecting from MQTT broker")

	if client := v.detachSession(); client != nil {
		if err := client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			v.logger.Debug("Disconnect returned error", "error", err)
		}
	}
	v.connected.Store(false)
	v.cfg.emit(Event{Kind: EventDisconnected, BrokerURL: v.opts.BrokerURL()})
}

func (v *v5Client) detachSession() *paho.Client {
	v.mu.Lock()
	defer v.mu.Unlock()
	client := v.client
	v.client = nil
	return client
}

func (v *v5Client) session() (*paho.Client, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.client == nil || !v.connected.Load() {
		return nil, ErrNotConnected
	}
	return v.client, nil
}

func (v *v5Client) opContext() (context.Context, context.CancelFunc) {
	if v.opts.ConnectTimeout > 0 {
		return context.WithTimeout(context.Background(), v.opts.ConnectTimeout)
	}
	return context.WithCancel(context.Background())
}

// Subscribe subscribes to a topic with the given QoS and handler
func (v *v5Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	client, err := v.session()
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	v.logger.Info("Subscribing to MQTT topic", "topic", topic, "qos", qos)

	v.mu.Lock()
	v.handlers[topic] = handler
	v.mu.Unlock()

	ctx, cancel := v.opContext()
	defer cancel()

	suback, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err == nil && len(suback.Reasons) > 0 && suback.Reasons[0] >= 0x80 {
		err = fmt.Errorf("subscription refused with reason code %d", suback.Reasons[0])
	}
	if err != nil {
		v.mu.Lock()
		delete(v.handlers, topic)
		v.mu.Unlock()
		v.cfg.emit(Event{Kind: EventException, Topics: []string{topic}, Err: err})
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	v.logger.Info("Successfully subscribed to topic", "topic", topic)
	v.cfg.emit(Event{Kind: EventSubscribed, Topics: []string{topic}, QoS: qos})
	return nil
}

// Unsubscribe removes subscriptions for the given topic filters
func (v *v5Client) Unsubscribe(topics ...string) error {
	client, err := v.session()
	if err != nil {
		return fmt.Errorf("failed to unsubscribe from topics %v: %w", topics, err)
	}

	ctx, cancel := v.opContext()
	defer cancel()

	if _, err := client.Unsubscribe(ctx, &paho.Unsubscribe{Topics: topics}); err != nil {
		v.cfg.emit(Event{Kind: EventException, Topics: topics, Err: err})
		return fmt.Errorf("failed to unsubscribe from topics %v: %w", topics, err)
	}

	v.mu.Lock()
	for _, t := range topics {
		delete(v.handlers, t)
	}
	v.mu.Unlock()

	v.logger.Info("Unsubscribed from topics", "topics", topics)
	v.cfg.emit(Event{Kind: EventUnsubscribed, Topics: topics})
	return nil
}

// Publish publishes a message to a topic
func (v *v5Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := ValidateTopicName(topic); err != nil {
		return err
	}
	client, err := v.session()
	if err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	ctx, cancel := v.opContext()
	defer cancel()

	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retained,
		Payload: payload,
	}); err != nil {
		v.cfg.emit(Event{Kind: EventException, Topics: []string{topic}, Err: err})
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	v.logger.Debug("Published message", "topic", topic, "size", len(payload))
	v.cfg.emit(Event{Kind: EventMessagePublished, Topics: []string{topic}, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

// IsConnected returns whether the client is currently connected
func (v *v5Client) IsConnected() bool {
	return v.connected.Load()
}

// Options returns the connection options the client was created with
func (v *v5Client) Options() broker.Options {
	return v.opts
}

func (v *v5Client) route(pr paho.PublishReceived) (bool, error) {
	p := pr.Packet
	msg := &v5Message{topic: p.Topic, payload: p.Payload, qos: p.QoS, retained: p.Retain}

	v.cfg.emit(Event{Kind: EventMessageReceived, Topics: []string{p.Topic}, Payload: p.Payload, QoS: p.QoS, Retained: p.Retain})

	for _, h := range v.matchingHandlers(p.Topic) {
		h(msg)
	}
	return true, nil
}

func (v *v5Client) matchingHandlers(topic string) []MessageHandler {
	v.mu.RLock()
	defer v.mu.RUnlock()

	filters := make([]string, 0, len(v.handlers))
	for filter := range v.handlers {
		if MatchTopic(filter, topic) {
			filters = append(filters, filter)
		}
	}
	slices.Sort(filters)

	handlers := make([]MessageHandler, 0, len(filters))
	for _, f := range filters {
		handlers = append(handlers, v.handlers[f])
	}
	return handlers
}

// v5Message implements Message for packets received by the MQTT 5 client.
// Acknowledgements are sent by paho once the handler returns.
type v5Message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *v5Message) Topic() string   { return m.topic }
func (m *v5Message) Payload() []byte { return m.payload }
func (m *v5Message) QoS() byte       { return m.qos }
func (m *v5Message) Retained() bool  { return m.retained }
func (m *v5Message) Ack()            {}

func seconds(d *time.Duration) *uint32 {
	if d == nil {
		return nil
	}
	s := uint32(*d / time.Second)
	return &s
}

func userProperties(props map[string]string) paho.UserProperties {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	user := make(paho.UserProperties, 0, len(keys))
	for _, k := range keys {
		user = append(user, paho.UserProperty{Key: k, Value: props[k]})
	}
	return user
}
