package broker

import (
	"encoding/base64"
	"encoding/hex"
	"time"
)

// Settings is the declarative form of a Builder, suitable for YAML or
// JSON configuration. Zero values mean "not set"; pointer fields are
// used where the zero value is itself meaningful.
type Settings struct {
	URI      string `yaml:"uri,omitempty" json:"uri,omitempty"`
	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     *int   `yaml:"port,omitempty" json:"port,omitempty"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	TLS      *bool  `yaml:"tls,omitempty" json:"tls,omitempty"`

	ClientID string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	KeepaliveSec      *int  `yaml:"keepalive_sec,omitempty" json:"keepalive_sec,omitempty"`
	ConnectTimeoutMs  *int  `yaml:"connect_timeout_ms,omitempty" json:"connect_timeout_ms,omitempty"`
	CleanSession      *bool `yaml:"clean_session,omitempty" json:"clean_session,omitempty"`
	ProtocolLevel     int   `yaml:"protocol_level,omitempty" json:"protocol_level,omitempty"`
	ReconnectPeriodMs *int  `yaml:"reconnect_period_ms,omitempty" json:"reconnect_period_ms,omitempty"`

	Will *WillSettings `yaml:"will,omitempty" json:"will,omitempty"`

	CABase64          string `yaml:"ca_base64,omitempty" json:"ca_base64,omitempty"`
	CertificateBase64 string `yaml:"certificate_base64,omitempty" json:"certificate_base64,omitempty"`
	PrivateKeyBase64  string `yaml:"private_key_base64,omitempty" json:"private_key_base64,omitempty"`
	KeyStorePassword  string `yaml:"keystore_password,omitempty" json:"keystore_password,omitempty"`
}

// WillSettings is the declarative form of a Will. The payload is given
// either as UTF-8 text or as a hex string.
type WillSettings struct {
	Topic      string `yaml:"topic" json:"topic"`
	Payload    string `yaml:"payload,omitempty" json:"payload,omitempty"`
	PayloadHex string `yaml:"payload_hex,omitempty" json:"payload_hex,omitempty"`
	QoS        int    `yaml:"qos,omitempty" json:"qos,omitempty"`
	Retain     bool   `yaml:"retain,omitempty" json:"retain,omitempty"`

	DelayIntervalSec *int              `yaml:"delay_interval_sec,omitempty" json:"delay_interval_sec,omitempty"`
	MessageExpirySec *int              `yaml:"message_expiry_sec,omitempty" json:"message_expiry_sec,omitempty"`
	ContentType      string            `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	ResponseTopic    string            `yaml:"response_topic,omitempty" json:"response_topic,omitempty"`
	CorrelationData  string            `yaml:"correlation_data,omitempty" json:"correlation_data,omitempty"`
	UserProperties   map[string]string `yaml:"user_properties,omitempty" json:"user_properties,omitempty"`
	PayloadUTF8      bool              `yaml:"payload_utf8,omitempty" json:"payload_utf8,omitempty"`
}

// Apply feeds every set field into b and returns it. Decoding problems
// are recorded on the builder and surface from Build.
func (s Settings) Apply(b *Builder) *Builder {
	if s.URI != "" {
		b.URI(s.URI)
	}
	if s.Host != "" {
		b.Host(s.Host)
	}
	if s.Port != nil {
		b.Port(*s.Port)
	}
	if s.Protocol != "" {
		p, err := ParseProtocolName(s.Protocol)
		if err != nil {
			return b.fail(err)
		}
		b.Protocol(p)
	}
	if s.TLS != nil {
		b.TLS(*s.TLS)
	}

	if s.ClientID != "" {
		b.ClientID(s.ClientID)
	}
	if s.Username != "" {
		b.Username(s.Username)
	}
	if s.Password != "" {
		b.Password(s.Password)
	}

	if s.KeepaliveSec != nil {
		b.KeepAlive(time.Duration(*s.KeepaliveSec) * time.Second)
	}
	if s.ConnectTimeoutMs != nil {
		b.ConnectTimeout(time.Duration(*s.ConnectTimeoutMs) * time.Millisecond)
	}
	if s.ReconnectPeriodMs != nil {
		b.ReconnectPeriod(time.Duration(*s.ReconnectPeriodMs) * time.Millisecond)
	}
	if s.CleanSession != nil {
		b.CleanSession(*s.CleanSession)
	}
	if s.ProtocolLevel != 0 {
		b.ProtocolLevel(s.ProtocolLevel)
	}

	if s.Will != nil {
		w, err := s.Will.will()
		if err != nil {
			return b.fail(err)
		}
		b.Will(w)
	}

	for _, f := range []struct {
		field string
		value string
		set   func([]byte) *Builder
	}{
		{"ca_base64", s.CABase64, b.CA},
		{"certificate_base64", s.CertificateBase64, b.Certificate},
		{"private_key_base64", s.PrivateKeyBase64, b.PrivateKey},
	} {
		if f.value == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(f.value)
		if err != nil {
			return b.fail(&InvalidOptionError{Field: f.field, Reason: "not valid base64"})
		}
		f.set(data)
	}
	if s.KeyStorePassword != "" {
		b.KeyStorePassword(s.KeyStorePassword)
	}

	return b
}

// Build applies the settings to a new Builder and builds Options
func (s Settings) Build(opts ...BuilderOption) (Options, error) {
	return s.Apply(NewBuilder(opts...)).Build()
}

// Redacted returns a copy without password, private key or keystore password
func (s Settings) Redacted() Settings {
	s.Password = ""
	s.PrivateKeyBase64 = ""
	s.KeyStorePassword = ""
	return s
}

func (w WillSettings) will() (Will, error) {
	if w.Payload != "" && w.PayloadHex != "" {
		return Will{}, &ConfigConflictError{Field: "will payload", Reason: "payload and payload_hex are mutually exclusive"}
	}
	if w.QoS < 0 || w.QoS > 2 {
		return Will{}, &InvalidOptionError{Field: "will qos", Reason: "must be 0, 1 or 2"}
	}

	payload := []byte(w.Payload)
	if w.PayloadHex != "" {
		decoded, err := hex.DecodeString(w.PayloadHex)
		if err != nil {
			return Will{}, &InvalidOptionError{Field: "will payload_hex", Reason: "not a valid hex string"}
		}
		payload = decoded
	}

	will := Will{
		Topic:   w.Topic,
		Payload: payload,
		QoS:     byte(w.QoS),
		Retain:  w.Retain,
	}

	if w.hasProperties() {
		props := &WillProperties{
			ContentType:    w.ContentType,
			ResponseTopic:  w.ResponseTopic,
			UserProperties: w.UserProperties,
			PayloadUTF8:    w.PayloadUTF8,
		}
		if w.CorrelationData != "" {
			props.CorrelationData = []byte(w.CorrelationData)
		}
		if w.DelayIntervalSec != nil {
			d := time.Duration(*w.DelayIntervalSec) * time.Second
			props.DelayInterval = &d
		}
		if w.MessageExpirySec != nil {
			d := time.Duration(*w.MessageExpirySec) * time.Second
			props.MessageExpiry = &d
		}
		will.Properties = props
	}

	return will, nil
}

func (w WillSettings) hasProperties() bool {
	return w.DelayIntervalSec != nil || w.MessageExpirySec != nil ||
		w.ContentType != "" || w.ResponseTopic != "" || w.CorrelationData != "" ||
		len(w.UserProperties) > 0 || w.PayloadUTF8
}
