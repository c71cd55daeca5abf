package profile

import (
	"context"
	"errors"
	"time"

	"github.com/saaga0h/quito/pkg/broker"
)

// ErrProfileNotFound is returned when a named profile does not exist
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named set of broker settings. Secrets are never stored.
type Profile struct {
	Name     string          `json:"name"`
	Settings broker.Settings `json:"settings"`
	SavedAt  time.Time       `json:"saved_at"`
}

// Store persists connection profiles
type Store interface {
	// Save stores settings under name, replacing any existing profile
	Save(ctx context.Context, name string, settings broker.Settings) error

	// Load returns the profile stored under name
	Load(ctx context.Context, name string) (Profile, error)

	// List returns all profile names in sorted order
	List(ctx context.Context) ([]string, error)

	// Delete removes a profile
	Delete(ctx context.Context, name string) error

	// Ping checks the connection to the backing store
	Ping(ctx context.Context) error

	// Close closes the connection
	Close() error
}
