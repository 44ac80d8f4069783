package models

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// SessionName returns the session cookie name used for host.
func SessionName(host string) string {
	sum := sha256.Sum256([]byte(host))
	return "SESS" + hex.EncodeToString(sum[:])[:32]
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// HashSessionID returns the value stored for a session id. Storage never
// holds raw session ids.
func HashSessionID(sid string) string {
	sum := sha256.Sum256([]byte(sid))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
