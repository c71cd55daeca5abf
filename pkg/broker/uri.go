package broker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// URI is a parsed broker address
type URI struct {
	Host     string
	Port     int
	Protocol Protocol
	TLS      bool
}

// hostPattern accepts a hostname optionally followed by a path segment,
// e.g. "test.mosquitto.org/secure"
var hostPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+(/[A-Za-z0-9_./\-]*)?$`)

// ParseURI parses a broker URI of the form scheme://host:port.
//
// The scheme is case-insensitive and must be one of tcp, mqtt, ssl,
// mqtts, ws or wss. The host may carry a path segment before the port
// ("wss://example.org/mqtt:8081"), in which case the whole prefix up to
// the final ':' is returned as Host.
func ParseURI(uri string) (URI, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return URI{}, &InvalidURIError{URI: uri, Reason: "missing scheme"}
	}
	if !isSchemeToken(scheme) {
		return URI{}, &InvalidURIError{URI: uri, Reason: "malformed scheme"}
	}

	protocol, err := ResolveProtocol(scheme)
	if err != nil {
		return URI{}, err
	}

	idx := strings.LastIndexByte(rest, ':')
	if idx < 0 {
		return URI{}, &InvalidURIError{URI: uri, Reason: "missing port"}
	}
	host, portStr := rest[:idx], rest[idx+1:]

	if host == "" {
		return URI{}, &InvalidURIError{URI: uri, Reason: "empty host"}
	}
	if !hostPattern.MatchString(host) {
		return URI{}, &InvalidURIError{URI: uri, Reason: "host contains invalid characters"}
	}

	port, err := parsePort(portStr)
	if err != nil {
		return URI{}, &InvalidURIError{URI: uri, Reason: err.Error()}
	}

	return URI{
		Host:     host,
		Port:     port,
		Protocol: protocol,
		TLS:      protocol.TLS(),
	}, nil
}

// String renders the URI back into scheme://host:port form
func (u URI) String() string {
	return u.Protocol.Prefix() + u.Host + ":" + strconv.Itoa(u.Port)
}

func isSchemeToken(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_') {
			return false
		}
	}
	return true
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing port")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("port %q is not a decimal integer", s)
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port > 65535 {
		return 0, fmt.Errorf("port %s out of range", s)
	}
	return port, nil
}
