package broker

import "github.com/google/uuid"

// IDGenerator produces a client ID when none was configured
type IDGenerator func() string

// DefaultIDGenerator returns "quito-go-" followed by a random UUID
func DefaultIDGenerator() string {
	return "quito-go-" + uuid.NewString()
}

// StaticID returns a generator that always yields id
func StaticID(id string) IDGenerator {
	return func() string { return id }
}
