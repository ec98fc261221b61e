package hive

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateKey returns a random (UUIDv4) asset key as 32 hex characters.
//
// The key names the asset directory and the database row, so it must be
// safe as a single path element.
//
// Example:
//
//	"f3ab7c54c8a44f01bd1182d4a57c121a"
func GenerateKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
