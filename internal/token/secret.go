package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// secretBytes is the entropy of a generated secret (256 bits).
const secretBytes = 32

// SecretPrefix marks gateway-issued secrets, making them recognizable in
// logs and secret scanners without revealing anything about the owner.
const SecretPrefix = "tg_"

// NewSecret generates a new high-entropy token secret.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// NewID generates a new record identifier.
func NewID() string {
	return uuid.NewString()
}
