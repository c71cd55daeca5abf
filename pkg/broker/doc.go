// Package broker parses MQTT broker URIs and builds validated connection
// options.
//
// A broker URI has the form scheme://host:port where scheme is one of
// tcp, mqtt, ssl, mqtts, ws or wss. ParseURI maps the scheme to a
// Protocol and reports whether TLS is implied:
//
//	u, err := broker.ParseURI("wss://test.mosquitto.org/secure:8081")
//	// u.Host == "test.mosquitto.org/secure", u.Port == 8081, u.TLS == true
//
// Builder collects the remaining settings and fills defaults:
//
//	opts, err := broker.NewBuilder().
//		URI("tcp://broker.local:1883").
//		TLS(true). // upgrades tcp to ssl
//		Credentials("user", "secret").
//		Build()
//
// The package performs no I/O and is safe to use from any goroutine as
// long as a single Builder is not shared.
package broker
