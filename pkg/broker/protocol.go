package broker

import "strings"

// Protocol is the transport used to reach an MQTT broker
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolTCPTLS
	ProtocolWS
	ProtocolWSS
)

// Protocols lists every supported protocol in declaration order
var Protocols = []Protocol{ProtocolTCP, ProtocolTCPTLS, ProtocolWS, ProtocolWSS}

// String returns the enumeration name (TCP, TCP_TLS, WS, WSS)
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolTCPTLS:
		return "TCP_TLS"
	case ProtocolWS:
		return "WS"
	case ProtocolWSS:
		return "WSS"
	default:
		return "UNKNOWN"
	}
}

// Scheme returns the canonical URI scheme for the protocol
func (p Protocol) Scheme() string {
	switch p {
	case ProtocolTCPTLS:
		return "ssl"
	case ProtocolWS:
		return "ws"
	case ProtocolWSS:
		return "wss"
	default:
		return "tcp"
	}
}

// Prefix returns the scheme followed by "://"
func (p Protocol) Prefix() string {
	return p.Scheme() + "://"
}

// TLS reports whether the protocol requires a TLS connection
func (p Protocol) TLS() bool {
	return p == ProtocolTCPTLS || p == ProtocolWSS
}

// DefaultPort returns the well-known port used when none is given
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolTCPTLS:
		return 8883
	case ProtocolWS:
		return 80
	case ProtocolWSS:
		return 443
	default:
		return 1883
	}
}

func (p Protocol) valid() bool {
	return p >= ProtocolTCP && p <= ProtocolWSS
}

// MarshalText implements encoding.TextMarshaler
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, &UnknownProtocolError{Token: p.String()}
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseProtocolName
func (p *Protocol) UnmarshalText(text []byte) error {
	resolved, err := ParseProtocolName(string(text))
	if err != nil {
		return err
	}
	*p = resolved
	return nil
}

// ResolveProtocol maps a URI scheme token (tcp, mqtt, ssl, mqtts, ws, wss)
// to a Protocol. Matching is case-insensitive. Unknown tokens are an
// error, never a default.
func ResolveProtocol(token string) (Protocol, error) {
	switch strings.ToLower(token) {
	case "tcp", "mqtt":
		return ProtocolTCP, nil
	case "ssl", "mqtts":
		return ProtocolTCPTLS, nil
	case "ws":
		return ProtocolWS, nil
	case "wss":
		return ProtocolWSS, nil
	default:
		return ProtocolTCP, &UnknownProtocolError{Token: token}
	}
}

// ParseProtocolName accepts an enum name (TCP, TCP_TLS, WS, WSS) or any
// scheme token ResolveProtocol accepts. It is meant for explicit protocol
// settings, not URI schemes.
func ParseProtocolName(name string) (Protocol, error) {
	for _, p := range Protocols {
		if strings.EqualFold(name, p.String()) {
			return p, nil
		}
	}
	return ResolveProtocol(name)
}
