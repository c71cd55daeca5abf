package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/saaga0h/quito/pkg/broker"
	"nhooyr.io/websocket"
)

// dial opens the transport connection for the MQTT 5 client
func dial(ctx context.Context, opts broker.Options, tlsCfg *tls.Config) (net.Conn, error) {
	switch opts.Protocol {
	case broker.ProtocolTCP:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", opts.Address())

	case broker.ProtocolTCPTLS:
		d := tls.Dialer{Config: tlsCfg}
		return d.DialContext(ctx, "tcp", opts.Address())

	case broker.ProtocolWS, broker.ProtocolWSS:
		dialOpts := &websocket.DialOptions{
			Subprotocols: []string{"mqtt"},
		}
		if tlsCfg != nil {
			dialOpts.HTTPClient = &http.Client{
				Transport: &http.Transport{TLSClientConfig: tlsCfg},
			}
		}

		c, _, err := websocket.Dial(ctx, opts.BrokerURL(), dialOpts)
		if err != nil {
			return nil, fmt.Errorf("websocket dial %s: %w", opts.BrokerURL(), err)
		}

		// The connection must outlive the dial context
		return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil

	default:
		return nil, &broker.UnknownProtocolError{Token: opts.Protocol.String()}
	}
}
