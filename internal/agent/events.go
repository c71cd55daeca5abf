package agent

import (
	"log/slog"

	"github.com/saaga0h/quito/pkg/mqtt"
)

// LogEvents returns an event handler that writes client lifecycle events
// to logger. Message events are logged at debug level.
func LogEvents(logger *slog.Logger) mqtt.EventHandler {
	return func(e mqtt.Event) {
		attrs := []any{"event", string(e.Kind), "client_ref", e.ClientRef}
		if e.BrokerURL != "" {
			attrs = append(attrs, "broker", e.BrokerURL)
		}
		if len(e.Topics) > 0 {
			attrs = append(attrs, "topics", e.Topics)
		}

		switch e.Kind {
		case mqtt.EventException, mqtt.EventConnectionLost, mqtt.EventClientRefUnknown:
			if e.Err != nil {
				attrs = append(attrs, "error", e.Err)
			}
			logger.Warn("MQTT client event", attrs...)
		case mqtt.EventMessageReceived, mqtt.EventMessagePublished:
			attrs = append(attrs, "qos", e.QoS, "size", len(e.Payload))
			logger.Debug("MQTT client event", attrs...)
		default:
			logger.Info("MQTT client event", attrs...)
		}
	}
}
