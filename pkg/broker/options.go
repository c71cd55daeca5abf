package broker

import (
	"maps"
	"net"
	"strconv"
	"strings"
	"time"
)

// Defaults applied by Build for settings that were not provided
const (
	DefaultKeepAlive       = 60 * time.Second
	DefaultConnectTimeout  = 30000 * time.Millisecond
	DefaultCleanSession    = true
	DefaultProtocolLevel   = 4
	DefaultReconnectPeriod = 1000 * time.Millisecond
)

// Options is the validated connection configuration handed to an MQTT
// client adapter. Values returned by Builder.Build own their slices and
// maps, so changing one never affects the builder or another Options.
type Options struct {
	ClientID string
	Host     string
	Port     int
	Protocol Protocol
	TLS      bool

	Username string
	Password string

	KeepAlive       time.Duration
	ConnectTimeout  time.Duration
	CleanSession    bool
	ProtocolLevel   int
	ReconnectPeriod time.Duration

	Will        *Will
	TLSMaterial *TLSMaterial
}

// Will is the last-will message the broker publishes when the client
// disconnects abnormally
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool

	// Properties are only sent on MQTT 5 connections
	Properties *WillProperties
}

// WillProperties are the MQTT 5 will properties
type WillProperties struct {
	DelayInterval   *time.Duration
	MessageExpiry   *time.Duration
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  map[string]string
	PayloadUTF8     bool
}

// TLSMaterial carries certificates and keys, PEM or DER encoded
type TLSMaterial struct {
	CA               []byte
	Certificate      []byte
	PrivateKey       []byte
	KeyStorePassword string
}

// Address returns host:port, dropping any path segment of the host
func (o Options) Address() string {
	host, _ := splitHostPath(o.Host)
	return net.JoinHostPort(host, strconv.Itoa(o.Port))
}

// BrokerURL returns a dialable URL. A path carried in the host
// ("example.org/mqtt") is moved after the port.
func (o Options) BrokerURL() string {
	_, path := splitHostPath(o.Host)
	return o.Protocol.Prefix() + o.Address() + path
}

// HasCredentials reports whether a username or password is configured
func (o Options) HasCredentials() bool {
	return o.Username != "" || o.Password != ""
}

func splitHostPath(host string) (string, string) {
	if i := strings.IndexByte(host, '/'); i >= 0 {
		return host[:i], host[i:]
	}
	return host, ""
}

func (o Options) clone() Options {
	if o.Will != nil {
		w := o.Will.clone()
		o.Will = &w
	}
	if o.TLSMaterial != nil {
		m := *o.TLSMaterial
		m.CA = cloneBytes(m.CA)
		m.Certificate = cloneBytes(m.Certificate)
		m.PrivateKey = cloneBytes(m.PrivateKey)
		o.TLSMaterial = &m
	}
	return o
}

func (w Will) clone() Will {
	w.Payload = cloneBytes(w.Payload)
	if w.Properties != nil {
		p := *w.Properties
		p.CorrelationData = cloneBytes(p.CorrelationData)
		p.UserProperties = maps.Clone(p.UserProperties)
		if p.DelayInterval != nil {
			d := *p.DelayInterval
			p.DelayInterval = &d
		}
		if p.MessageExpiry != nil {
			d := *p.MessageExpiry
			p.MessageExpiry = &d
		}
		w.Properties = &p
	}
	return w
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
