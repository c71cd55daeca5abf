package broker

import (
	"fmt"
	"strings"
	"time"
)

const maxKeepAlive = 65535 * time.Second

// Builder accumulates connection settings and produces validated Options.
//
// Setters record the first error they hit (an unparsable URI, a negative
// duration) and Build returns it. Build can be called more than once and
// returns an equal, independent copy each time.
type Builder struct {
	genID IDGenerator
	err   error

	host     *string
	port     *int
	protocol *Protocol
	tls      *bool

	clientID    string
	generatedID string
	username    string
	password    string

	keepAlive       *time.Duration
	connectTimeout  *time.Duration
	reconnectPeriod *time.Duration
	cleanSession    *bool
	protocolLevel   int

	will        *Will
	tlsMaterial *TLSMaterial
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithIDGenerator sets the generator used when no client ID is configured
func WithIDGenerator(gen IDGenerator) BuilderOption {
	return func(b *Builder) {
		if gen != nil {
			b.genID = gen
		}
	}
}

// NewBuilder creates an empty Builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{genID: DefaultIDGenerator}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// URI parses a broker URI and sets host, port and protocol from it
func (b *Builder) URI(uri string) *Builder {
	u, err := ParseURI(uri)
	if err != nil {
		return b.fail(err)
	}
	return b.Endpoint(u.Host, u.Port, u.Protocol)
}

// Endpoint sets host, port and protocol together
func (b *Builder) Endpoint(host string, port int, protocol Protocol) *Builder {
	return b.Host(host).Port(port).Protocol(protocol)
}

// Host sets the broker host
func (b *Builder) Host(host string) *Builder {
	b.host = &host
	return b
}

// Port sets the broker port
func (b *Builder) Port(port int) *Builder {
	b.port = &port
	return b
}

// Protocol sets the transport protocol
func (b *Builder) Protocol(protocol Protocol) *Builder {
	if !protocol.valid() {
		return b.fail(&UnknownProtocolError{Token: protocol.String()})
	}
	b.protocol = &protocol
	return b
}

// TLS requests or forbids TLS. A plain TCP protocol is upgraded to
// TCP_TLS when tls is true; any other disagreement with the protocol
// makes Build fail with a ConfigConflictError.
func (b *Builder) TLS(tls bool) *Builder {
	b.tls = &tls
	return b
}

func (b *Builder) ClientID(clientID string) *Builder {
	b.clientID = clientID
	return b
}

func (b *Builder) Username(username string) *Builder {
	b.username = username
	return b
}

func (b *Builder) Password(password string) *Builder {
	b.password = password
	return b
}

// Credentials sets username and password
func (b *Builder) Credentials(username, password string) *Builder {
	return b.Username(username).Password(password)
}

// KeepAlive sets the keepalive interval in whole seconds; zero disables keepalive
func (b *Builder) KeepAlive(d time.Duration) *Builder {
	if d < 0 {
		return b.fail(&InvalidOptionError{Field: "keepalive", Reason: "must not be negative"})
	}
	if d%time.Second != 0 {
		return b.fail(&InvalidOptionError{Field: "keepalive", Reason: "must be a whole number of seconds"})
	}
	b.keepAlive = &d
	return b
}

// ConnectTimeout sets how long a connection attempt may take
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	if d < 0 {
		return b.fail(&InvalidOptionError{Field: "connect timeout", Reason: "must not be negative"})
	}
	b.connectTimeout = &d
	return b
}

// ReconnectPeriod sets the automatic reconnect interval; zero disables it
func (b *Builder) ReconnectPeriod(d time.Duration) *Builder {
	if d < 0 {
		return b.fail(&InvalidOptionError{Field: "reconnect period", Reason: "must not be negative"})
	}
	b.reconnectPeriod = &d
	return b
}

func (b *Builder) CleanSession(clean bool) *Builder {
	b.cleanSession = &clean
	return b
}

// ProtocolLevel sets the MQTT protocol level: 3 (3.1), 4 (3.1.1) or 5
func (b *Builder) ProtocolLevel(level int) *Builder {
	b.protocolLevel = level
	return b
}

// Will sets the last-will message
func (b *Builder) Will(will Will) *Builder {
	w := will.clone()
	b.will = &w
	return b
}

func (b *Builder) material() *TLSMaterial {
	if b.tlsMaterial == nil {
		b.tlsMaterial = &TLSMaterial{}
	}
	return b.tlsMaterial
}

// CA sets the certificate authority used to verify the broker
func (b *Builder) CA(ca []byte) *Builder {
	b.material().CA = cloneBytes(ca)
	return b
}

// ClientCertificate sets the client certificate, its private key and the
// password protecting the key
func (b *Builder) ClientCertificate(cert, key []byte, password string) *Builder {
	return b.Certificate(cert).PrivateKey(key).KeyStorePassword(password)
}

func (b *Builder) Certificate(cert []byte) *Builder {
	b.material().Certificate = cloneBytes(cert)
	return b
}

func (b *Builder) PrivateKey(key []byte) *Builder {
	b.material().PrivateKey = cloneBytes(key)
	return b
}

func (b *Builder) KeyStorePassword(password string) *Builder {
	b.material().KeyStorePassword = password
	return b
}

// Build validates the accumulated settings and returns Options with
// every unset optional field defaulted
func (b *Builder) Build() (Options, error) {
	if b.err != nil {
		return Options{}, b.err
	}
	if b.host == nil || *b.host == "" {
		return Options{}, ErrMissingHost
	}

	protocol := ProtocolTCP
	if b.protocol != nil {
		protocol = *b.protocol
	}
	protocol, err := reconcileTLS(protocol, b.tls)
	if err != nil {
		return Options{}, err
	}

	port := protocol.DefaultPort()
	if b.port != nil {
		port = *b.port
	}
	if port < 0 || port > 65535 {
		return Options{}, &InvalidOptionError{Field: "port", Reason: fmt.Sprintf("%d is outside 0-65535", port)}
	}

	level := DefaultProtocolLevel
	if b.protocolLevel != 0 {
		level = b.protocolLevel
	}
	if level < 3 || level > 5 {
		return Options{}, &InvalidOptionError{Field: "protocol level", Reason: fmt.Sprintf("%d is not one of 3, 4, 5", level)}
	}

	opts := Options{
		ClientID:        b.clientID,
		Host:            *b.host,
		Port:            port,
		Protocol:        protocol,
		TLS:             protocol.TLS(),
		Username:        b.username,
		Password:        b.password,
		KeepAlive:       durationOr(b.keepAlive, DefaultKeepAlive),
		ConnectTimeout:  durationOr(b.connectTimeout, DefaultConnectTimeout),
		ReconnectPeriod: durationOr(b.reconnectPeriod, DefaultReconnectPeriod),
		CleanSession:    DefaultCleanSession,
		ProtocolLevel:   level,
		Will:            b.will,
		TLSMaterial:     b.tlsMaterial,
	}
	if b.cleanSession != nil {
		opts.CleanSession = *b.cleanSession
	}

	if opts.KeepAlive > maxKeepAlive {
		return Options{}, &InvalidOptionError{Field: "keepalive", Reason: "exceeds 65535 seconds"}
	}
	if opts.Password != "" && opts.Username == "" && level < 5 {
		return Options{}, &ConfigConflictError{Field: "password", Reason: "MQTT 3.x requires a username when a password is set"}
	}
	if err := validateWill(opts.Will, level); err != nil {
		return Options{}, err
	}
	if err := validateTLSMaterial(opts.TLSMaterial, opts.TLS); err != nil {
		return Options{}, err
	}

	if opts.ClientID == "" {
		if b.generatedID == "" {
			b.generatedID = b.genID()
		}
		opts.ClientID = b.generatedID
	}

	return opts.clone(), nil
}

func reconcileTLS(protocol Protocol, tls *bool) (Protocol, error) {
	if tls == nil || *tls == protocol.TLS() {
		return protocol, nil
	}
	if *tls && protocol == ProtocolTCP {
		return ProtocolTCPTLS, nil
	}
	if *tls {
		return protocol, &ConfigConflictError{Field: "tls", Reason: fmt.Sprintf("protocol %s does not use TLS", protocol)}
	}
	return protocol, &ConfigConflictError{Field: "tls", Reason: fmt.Sprintf("TLS is required by protocol %s", protocol)}
}

func validateWill(w *Will, level int) error {
	if w == nil {
		return nil
	}
	if w.Topic == "" {
		return &InvalidOptionError{Field: "will topic", Reason: "must not be empty"}
	}
	if strings.ContainsAny(w.Topic, "+#\x00") {
		return &InvalidOptionError{Field: "will topic", Reason: "must not contain wildcards"}
	}
	if w.QoS > 2 {
		return &InvalidOptionError{Field: "will qos", Reason: fmt.Sprintf("%d is not 0, 1 or 2", w.QoS)}
	}
	if w.Properties != nil && level < 5 {
		return &ConfigConflictError{Field: "will properties", Reason: "require protocol level 5"}
	}
	return nil
}

func validateTLSMaterial(m *TLSMaterial, tls bool) error {
	if m == nil {
		return nil
	}
	if !tls && (len(m.CA) > 0 || len(m.Certificate) > 0 || len(m.PrivateKey) > 0) {
		return &ConfigConflictError{Field: "tls material", Reason: "certificates given for a connection without TLS"}
	}
	if (len(m.Certificate) > 0) != (len(m.PrivateKey) > 0) {
		return &ConfigConflictError{Field: "client certificate", Reason: "certificate and private key must be provided together"}
	}
	return nil
}

func durationOr(d *time.Duration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return *d
}
