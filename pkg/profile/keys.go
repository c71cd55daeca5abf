package profile

import "fmt"

// DefaultNamespace prefixes every key written by the store
const DefaultNamespace = "quito"

// ProfilesKey returns the hash holding every profile, keyed by name
// Pattern: {namespace}:profiles
func ProfilesKey(namespace string) string {
	return fmt.Sprintf("%s:profiles", namespace)
}
