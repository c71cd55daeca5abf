package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saaga0h/quito/pkg/broker"
	"github.com/saaga0h/quito/pkg/config"
	"github.com/saaga0h/quito/pkg/mqtt"
	"github.com/saaga0h/quito/pkg/profile"
)

// Agent connects to one broker, subscribes to the configured topic
// filters and logs what arrives
type Agent struct {
	registry *mqtt.Registry
	store    profile.Store
	cfg      *config.Config
	logger   *slog.Logger
	genID    broker.IDGenerator
	now      func() time.Time

	ref    string
	client mqtt.Client
}

// Announcement is published to the announce topic after connecting
type Announcement struct {
	Service   string `json:"service"`
	ClientID  string `json:"client_id"`
	Broker    string `json:"broker"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewAgent creates a new agent. store may be nil when profiles are disabled.
func NewAgent(registry *mqtt.Registry, store profile.Store, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		genID:    broker.DefaultIDGenerator,
		now:      time.Now,
	}
}

// Start connects and subscribes, then blocks until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("Agent stopping")
	return nil
}

// connect resolves options, registers a client, connects and subscribes
func (a *Agent) connect(ctx context.Context) error {
	opts, err := a.resolveOptions(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("Starting agent",
		"service_name", a.cfg.ServiceName,
		"broker", opts.BrokerURL(),
		"client_id", opts.ClientID,
		"protocol_level", opts.ProtocolLevel)

	ref, client, err := a.registry.Create(opts)
	if err != nil {
		return err
	}
	a.ref, a.client = ref, client

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	var subscribed []string
	for _, topic := range a.cfg.Topics {
		if err := mqtt.ValidateTopicFilter(topic); err != nil {
			a.logger.Error("Skipping invalid topic filter", "topic", topic, "error", err)
			continue
		}
		if err := client.Subscribe(topic, byte(a.cfg.SubscribeQoS), a.handleMessage); err != nil {
			a.logger.Error("Failed to subscribe to topic", "topic", topic, "error", err)
			// Continue subscribing to other topics even if one fails
			continue
		}
		subscribed = append(subscribed, topic)
	}

	if a.cfg.AnnounceTopic != "" {
		if err := a.announce(opts); err != nil {
			a.logger.Warn("Failed to publish announcement", "topic", a.cfg.AnnounceTopic, "error", err)
		}
	}

	a.logger.Info("Agent started and ready to receive messages",
		"subscribed_topics", strings.Join(subscribed, ", "))
	return nil
}

// resolveOptions layers a saved profile under the configured settings
// and saves the result when asked to
func (a *Agent) resolveOptions(ctx context.Context) (broker.Options, error) {
	var base []broker.Settings

	if a.cfg.Profile != "" {
		if a.store == nil {
			return broker.Options{}, errors.New("profile requested but the profile store is disabled")
		}
		p, err := a.store.Load(ctx, a.cfg.Profile)
		if err != nil {
			return broker.Options{}, err
		}
		a.logger.Info("Loaded connection profile", "profile", p.Name, "saved_at", p.SavedAt)
		base = append(base, p.Settings)
	}

	opts, err := a.cfg.BrokerOptions(a.genID, base...)
	if err != nil {
		return broker.Options{}, err
	}

	if a.cfg.SaveProfile != "" {
		if a.store == nil {
			return broker.Options{}, errors.New("save-profile requested but the profile store is disabled")
		}
		settings := a.cfg.Broker
		if len(base) > 0 {
			settings = mergeSettings(base[0], a.cfg.Broker)
		}
		if err := a.store.Save(ctx, a.cfg.SaveProfile, settings); err != nil {
			return broker.Options{}, err
		}
		a.logger.Info("Saved connection profile", "profile", a.cfg.SaveProfile)
	}

	return opts, nil
}

// Stop disconnects the client and closes the profile store
func (a *Agent) Stop() error {
	a.logger.Info("Stopping agent")

	if a.ref != "" {
		if err := a.registry.Remove(a.ref); err != nil {
			a.logger.Warn("Client was already removed", "client_ref", a.ref, "error", err)
		}
		a.ref, a.client = "", nil
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Error closing profile store", "error", err)
			return err
		}
	}

	a.logger.Info("Agent stopped")
	return nil
}

func (a *Agent) announce(opts broker.Options) error {
	payload, err := json.Marshal(Announcement{
		Service:   a.cfg.ServiceName,
		ClientID:  opts.ClientID,
		Broker:    opts.BrokerURL(),
		Status:    "online",
		Timestamp: a.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode announcement: %w", err)
	}

	if err := a.client.Publish(a.cfg.AnnounceTopic, 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish announcement: %w", err)
	}

	a.logger.Info("Published announcement", "topic", a.cfg.AnnounceTopic)
	return nil
}

// handleMessage logs incoming MQTT messages
func (a *Agent) handleMessage(msg mqtt.Message) {
	a.logger.Info("Received MQTT message",
		"topic", msg.Topic(),
		"qos", msg.QoS(),
		"retained", msg.Retained(),
		"size", len(msg.Payload()))
	a.logger.Debug("Message payload", "topic", msg.Topic(), "payload", string(msg.Payload()))
}
