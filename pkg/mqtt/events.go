package mqtt

// EventKind names a client lifecycle event
type EventKind string

const (
	EventConnecting       EventKind = "CONNECTING"
	EventConnected        EventKind = "CONNECTED"
	EventConnectionLost   EventKind = "CONNECTION_LOST"
	EventReconnecting     EventKind = "RECONNECTING"
	EventDisconnected     EventKind = "DISCONNECTED"
	EventSubscribed       EventKind = "SUBSCRIBED"
	EventUnsubscribed     EventKind = "UNSUBSCRIBED"
	EventMessageReceived  EventKind = "MESSAGE_RECEIVED"
	EventMessagePublished EventKind = "MESSAGE_PUBLISHED"
	EventException        EventKind = "EXCEPTION"
	EventClientRefUnknown EventKind = "CLIENT_REF_UNKNOWN"
)

// Event is emitted by clients and the registry as things happen
type Event struct {
	Kind      EventKind
	ClientRef string
	BrokerURL string
	Topics    []string
	Payload   []byte
	QoS       byte
	Retained  bool
	Err       error
}

// EventHandler receives events. It is called synchronously from the
// client's goroutines and must not block.
type EventHandler func(Event)

// ClientOption configures a client created by NewClient
type ClientOption func(*clientConfig)

type clientConfig struct {
	ref    string
	events EventHandler
}

// WithClientRef tags every event from the client with ref
func WithClientRef(ref string) ClientOption {
	return func(c *clientConfig) {
		c.ref = ref
	}
}

// WithEventHandler delivers lifecycle events to h
func WithEventHandler(h EventHandler) ClientOption {
	return func(c *clientConfig) {
		c.events = h
	}
}

func (c clientConfig) emit(e Event) {
	if c.events == nil {
		return
	}
	e.ClientRef = c.ref
	c.events(e)
}
