package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/saaga0h/quito/pkg/broker"
)

// ErrUnsupportedProtocolLevel is returned for protocol levels no adapter handles
var ErrUnsupportedProtocolLevel = errors.New("unsupported MQTT protocol level")

// disconnectQuiesce is the grace period given to in-flight work on Disconnect
const disconnectQuiesce = 250

// NewClient creates an MQTT client for the given options. Protocol levels
// 3 and 4 use the Paho MQTT 3.1.1 client, level 5 uses the Paho MQTT 5 client.
func NewClient(opts broker.Options, logger *slog.Logger, clientOpts ...ClientOption) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cfg clientConfig
	for _, o := range clientOpts {
		o(&cfg)
	}

	switch opts.ProtocolLevel {
	case 3, 4:
		return newV3Client(opts, logger, cfg)
	case 5:
		return newV5Client(opts, logger, cfg)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedProtocolLevel, opts.ProtocolLevel)
	}
}

// mqttClient implements the Client interface using the Paho MQTT 3.1.1 client
type mqttClient struct {
	client pahomqtt.Client
	opts   broker.Options
	cfg    clientConfig
	logger *slog.Logger
}

func newV3Client(opts broker.Options, logger *slog.Logger, cfg clientConfig) (*mqttClient, error) {
	pahoOpts, err := pahoOptions(opts)
	if err != nil {
		return nil, err
	}

	m := &mqttClient{
		opts:   opts,
		cfg:    cfg,
		logger: logger.With("client_id", opts.ClientID),
	}

	pahoOpts.OnConnect = func(c pahomqtt.Client) {
		m.logger.Info("Connected to MQTT broker", "broker", opts.BrokerURL())
		m.cfg.emit(Event{Kind: EventConnected, BrokerURL: opts.BrokerURL()})
	}

	pahoOpts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		m.logger.Warn("MQTT connection lost", "error", err)
		m.cfg.emit(Event{Kind: EventConnectionLost, BrokerURL: opts.BrokerURL(), Err: err})
	}

	pahoOpts.OnReconnecting = func(c pahomqtt.Client, o *pahomqtt.ClientOptions) {
		m.logger.Info("MQTT reconnecting...")
		m.cfg.emit(Event{Kind: EventReconnecting, BrokerURL: opts.BrokerURL()})
	}

	m.client = pahomqtt.NewClient(pahoOpts)
	return m, nil
}

// pahoOptions translates broker options into Paho client options.
// Connection callbacks are left for the caller to install.
func pahoOptions(opts broker.Options) (*pahomqtt.ClientOptions, error) {
	if opts.ProtocolLevel != 3 && opts.ProtocolLevel != 4 {
		return nil, fmt.Errorf("%w: %d (paho.mqtt.golang speaks 3.1 and 3.1.1)", ErrUnsupportedProtocolLevel, opts.ProtocolLevel)
	}

	po := pahomqtt.NewClientOptions()
	po.AddBroker(opts.BrokerURL())
	po.SetClientID(opts.ClientID)

	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}

	po.SetProtocolVersion(uint(opts.ProtocolLevel))
	po.SetCleanSession(opts.CleanSession)
	po.SetKeepAlive(opts.KeepAlive)
	po.SetConnectTimeout(opts.ConnectTimeout)

	if opts.ReconnectPeriod > 0 {
		po.SetAutoReconnect(true)
		po.SetConnectRetry(true)
		po.SetConnectRetryInterval(opts.ReconnectPeriod)
		po.SetMaxReconnectInterval(maxDuration(opts.ReconnectPeriod, 30*time.Second))
	} else {
		po.SetAutoReconnect(false)
		po.SetConnectRetry(false)
	}

	if w := opts.Will; w != nil {
		po.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retain)
	}

	if opts.TLS {
		tlsCfg, err := TLSConfig(opts)
		if err != nil {
			return nil, err
		}
		po.SetTLSConfig(tlsCfg)
	}

	return po, nil
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Info("Connecting to MQTT broker", "broker", m.opts.BrokerURL())
	m.cfg.emit(Event{Kind: EventConnecting, BrokerURL: m.opts.BrokerURL()})

	token := m.client.Connect()

	// Wait for connection with context timeout
	select {
	case <-token.Done():
		if token.Error() != nil {
			m.cfg.emit(Event{Kind: EventException, BrokerURL: m.opts.BrokerURL(), Err: token.Error()})
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Disconnect closes the connection to the MQTT broker
func (m *mqttClient) Disconnect() {
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(disconnectQuiesce)
	m.cfg.emit(Event{Kind: EventDisconnected, BrokerURL: m.opts.BrokerURL()})
}

// Subscribe subscribes to a topic with the given QoS and handler
func (m *mqttClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	m.logger.Info("Subscribing to MQTT topic", "topic", topic, "qos", qos)

	// Wrap the handler to convert paho message to our interface
	pahoHandler := func(client pahomqtt.Client, msg pahomqtt.Message) {
		m.cfg.emit(Event{Kind: EventMessageReceived, Topics: []string{msg.Topic()}, Payload: msg.Payload(), QoS: msg.Qos(), Retained: msg.Retained()})
		handler(&mqttMessage{msg: msg})
	}

	token := m.client.Subscribe(topic, qos, pahoHandler)
	token.Wait()

	if token.Error() != nil {
		m.cfg.emit(Event{Kind: EventException, Topics: []string{topic}, Err: token.Error()})
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	m.logger.Info("Successfully subscribed to topic", "topic", topic)
	m.cfg.emit(Event{Kind: EventSubscribed, Topics: []string{topic}, QoS: qos})
	return nil
}

// Unsubscribe removes subscriptions for the given topic filters
func (m *mqttClient) Unsubscribe(topics ...string) error {
	token := m.client.Unsubscribe(topics...)
	token.Wait()

	if token.Error() != nil {
		m.cfg.emit(Event{Kind: EventException, Topics: topics, Err: token.Error()})
		return fmt.Errorf("failed to unsubscribe from topics %v: %w", topics, token.Error())
	}

	m.logger.Info("Unsubscribed from topics", "topics", topics)
	m.cfg.emit(Event{Kind: EventUnsubscribed, Topics: topics})
	return nil
}

// Publish publishes a message to a topic
func (m *mqttClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := ValidateTopicName(topic); err != nil {
		return err
	}

	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		m.cfg.emit(Event{Kind: EventException, Topics: []string{topic}, Err: token.Error()})
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	m.cfg.emit(Event{Kind: EventMessagePublished, Topics: []string{topic}, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}

// Options returns the connection options the client was created with
func (m *mqttClient) Options() broker.Options {
	return m.opts
}

// mqttMessage wraps a Paho MQTT message to implement our Message interface
type mqttMessage struct {
	msg pahomqtt.Message
}

func (m *mqttMessage) Topic() string {
	return m.msg.Topic()
}

func (m *mqttMessage) Payload() []byte {
	return m.msg.Payload()
}

func (m *mqttMessage) QoS() byte {
	return m.msg.Qos()
}

func (m *mqttMessage) Retained() bool {
	return m.msg.Retained()
}

func (m *mqttMessage) Ack() {
	m.msg.Ack()
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
