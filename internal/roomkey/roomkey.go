// Package roomkey derives per-room identifiers and symmetric keys from room
// passphrases and seals chat messages into the envelope format browsers
// decrypt.
package roomkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PublicRoom is the id of the always-present default room. Its key is
// derived from this same token.
const PublicRoom = "public"

// KeySize is the AES-128 key length in bytes.
const KeySize = 16

// Key is a symmetric room key.
type Key [KeySize]byte

// DeriveKey returns the first 16 bytes of SHA-256 over the passphrase.
func DeriveKey(passphrase string) Key {
	sum := sha256.Sum256([]byte(passphrase))
	var k Key
	copy(k[:], sum[:KeySize])
	return k
}

// RoomID returns the room a passphrase selects: the lowercase hex form of its
// derived key, or PublicRoom for a blank passphrase.
func RoomID(passphrase string) string {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return PublicRoom
	}
	k := DeriveKey(passphrase)
	return hex.EncodeToString(k[:])
}

// KeyFor returns the encryption key for a passphrase. A blank passphrase
// yields the public room key.
func KeyFor(passphrase string) Key {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		passphrase = PublicRoom
	}
	return DeriveKey(passphrase)
}

// IsPublic reports whether roomID is the public room.
func IsPublic(roomID string) bool {
	return roomID == PublicRoom
}

// Fingerprint returns a short one-way tag for roomID that is safe to log.
// Private room ids are key material and must not be written out.
func Fingerprint(roomID string) string {
	if IsPublic(roomID) {
		return PublicRoom
	}
	sum := sha256.Sum256([]byte("room:" + roomID))
	return hex.EncodeToString(sum[:4])
}
