package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saaga0h/quito/pkg/broker"
)

// redisStore implements Store with a single Redis hash
type redisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// Options configures the Redis connection of a store
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// NewRedisStore creates a profile store backed by Redis
func NewRedisStore(opts Options, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &redisStore{
		client: client,
		key:    ProfilesKey(namespace),
		logger: logger,
		now:    time.Now,
	}
}

// Save stores the redacted settings under name
func (s *redisStore) Save(ctx context.Context, name string, settings broker.Settings) error {
	if name == "" {
		return fmt.Errorf("profile name is required")
	}

	data, err := json.Marshal(Profile{
		Name:     name,
		Settings: settings.Redacted(),
		SavedAt:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", name, err)
	}

	if err := s.client.HSet(ctx, s.key, name, data).Err(); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", name, err)
	}

	s.logger.Debug("Saved profile", "name", name, "key", s.key)
	return nil
}

// Load returns the profile stored under name
func (s *redisStore) Load(ctx context.Context, name string) (Profile, error) {
	val, err := s.client.HGet(ctx, s.key, name).Result()
	if err == redis.Nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to load profile %s: %w", name, err)
	}

	var p Profile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile %s: %w", name, err)
	}
	return p, nil
}

// List returns all profile names
func (s *redisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.HKeys(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a profile
func (s *redisStore) Delete(ctx context.Context, name string) error {
	n, err := s.client.HDel(ctx, s.key, name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return nil
}

// Ping checks the connection to Redis
func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *redisStore) Close() error {
	s.logger.Info("Closing Redis connection")
	return s.client.Close()
}
