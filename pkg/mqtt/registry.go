package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/saaga0h/quito/pkg/broker"
)

// ErrUnknownClient is returned when a client reference is not registered
var ErrUnknownClient = errors.New("unknown client reference")

// Registry owns clients created from broker options and hands out
// opaque references to them
type Registry struct {
	logger    *slog.Logger
	events    EventHandler
	newClient ClientFactory

	mu      sync.RWMutex
	clients map[string]Client
}

// ClientFactory creates a client for the given options. NewClient is the
// default.
type ClientFactory func(broker.Options, *slog.Logger, ...ClientOption) (Client, error)

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClientFactory replaces the factory used by Create
func WithClientFactory(f ClientFactory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.newClient = f
		}
	}
}

// NewRegistry creates an empty registry. The event handler, if any, is
// installed on every client it creates.
func NewRegistry(logger *slog.Logger, events EventHandler, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:    logger,
		events:    events,
		newClient: NewClient,
		clients:   make(map[string]Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create builds a client for opts and returns its reference
func (r *Registry) Create(opts broker.Options) (string, Client, error) {
	ref := uuid.NewString()

	clientOpts := []ClientOption{WithClientRef(ref)}
	if r.events != nil {
		clientOpts = append(clientOpts, WithEventHandler(r.events))
	}

	client, err := r.newClient(opts, r.logger.With("client_ref", ref), clientOpts...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create client for %s: %w", opts.BrokerURL(), err)
	}

	r.mu.Lock()
	r.clients[ref] = client
	r.mu.Unlock()

	r.logger.Debug("Registered MQTT client", "client_ref", ref, "broker", opts.BrokerURL())
	return ref, client, nil
}

// Get returns the client registered under ref
func (r *Registry) Get(ref string) (Client, error) {
	r.mu.RLock()
	client, ok := r.clients[ref]
	r.mu.RUnlock()

	if !ok {
		if r.events != nil {
			r.events(Event{Kind: EventClientRefUnknown, ClientRef: ref})
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, ref)
	}
	return client, nil
}

// Remove disconnects the client if needed and forgets it
func (r *Registry) Remove(ref string) error {
	r.mu.Lock()
	client, ok := r.clients[ref]
	delete(r.clients, ref)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, ref)
	}
	if client.IsConnected() {
		client.Disconnect()
	}
	return nil
}

// Refs returns the registered references in sorted order
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.clients))
	for ref := range r.clients {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}

// ConnectedCount returns how many registered clients are connected
func (r *Registry) ConnectedCount() (connected, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if c.IsConnected() {
			connected++
		}
	}
	return connected, len(r.clients)
}

// Close disconnects and removes every client
func (r *Registry) Close() {
	for _, ref := range r.Refs() {
		if err := r.Remove(ref); err != nil {
			r.logger.Debug("Client already removed", "client_ref", ref)
		}
	}
}
