package sessionfile

import (
	"fmt"
	"os"
	"os/user"

	"golang.org/x/crypto/argon2"
)

// keySalt is a fixed application salt. The derived key only needs to be
// unique per user+machine, not per file; the per-save GCM nonce provides
// ciphertext freshness.
var keySalt = []byte("portalsync/session-envelope/v1")

// argon2id parameters. Memory-hard on purpose so an attacker who copies
// the session file cannot cheaply brute-force the identity material.
const (
	keyTime    = 3
	keyMemory  = 64 * 1024 // KiB
	keyThreads = 4
	keyLength  = 32
)

// deriveKey derives the AES-256 key from the local user and machine
// identity. The same user on the same machine always gets the same key;
// the file is unreadable anywhere else.
func deriveKey() ([]byte, error) {
	current, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolving current user: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("resolving hostname: %w", err)
	}

	material := current.Uid + "|" + current.Username + "|" + hostname
	return argon2.IDKey([]byte(material), keySalt, keyTime, keyMemory, keyThreads, keyLength), nil
}
