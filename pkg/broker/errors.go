package broker

import "fmt"

// InvalidURIError is returned when a broker URI does not match
// scheme://host:port
type InvalidURIError struct {
	URI    string
	Reason string
}

func (e *InvalidURIError) Error() string {
	return fmt.Sprintf("invalid broker uri %q: %s", e.URI, e.Reason)
}

// UnknownProtocolError is returned for scheme or protocol tokens outside
// the supported set
type UnknownProtocolError struct {
	Token string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown protocol %q", e.Token)
}

// ConfigConflictError is returned when two explicit settings contradict
// each other, e.g. tls=false with a wss:// broker
type ConfigConflictError struct {
	Field  string
	Reason string
}

func (e *ConfigConflictError) Error() string {
	return fmt.Sprintf("conflicting %s setting: %s", e.Field, e.Reason)
}

// InvalidOptionError is returned when a single setting is out of range
type InvalidOptionError struct {
	Field  string
	Reason string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MissingHostError is returned by Build when neither a URI nor a host was set
type MissingHostError struct{}

func (e *MissingHostError) Error() string {
	return "missing broker host: provide a broker uri or host"
}

// ErrMissingHost is the MissingHostError returned by Build
var ErrMissingHost error = &MissingHostError{}
