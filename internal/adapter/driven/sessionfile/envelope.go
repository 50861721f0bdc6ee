package sessionfile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// envelopeVersion is bumped on any incompatible change to the on-disk
// format. Loading an unknown version degrades to "absent".
const envelopeVersion = 1

const (
	nonceSize = 12
	tagSize   = 16
)

// envelope is the on-disk session file: cleartext metadata around an
// authenticated ciphertext. Timestamps are Unix milliseconds.
type envelope struct {
	Version   int              `json:"version"`
	Encrypted encryptedPayload `json:"encrypted"`
	CreatedAt int64            `json:"createdAt"`
	ExpiresAt int64            `json:"expiresAt"`
}

// encryptedPayload carries the AES-256-GCM pieces, hex encoded. The
// 16-byte authentication tag is stored separately from the ciphertext.
type encryptedPayload struct {
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

// seal encrypts plaintext with AES-256-GCM under key, using a fresh
// random 12-byte nonce per call.
func seal(key, plaintext []byte) (*encryptedPayload, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal produces ciphertext || tag; the envelope stores them apart.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	boundary := len(sealed) - tagSize

	return &encryptedPayload{
		Nonce:      hex.EncodeToString(nonce),
		Tag:        hex.EncodeToString(sealed[boundary:]),
		Ciphertext: hex.EncodeToString(sealed[:boundary]),
	}, nil
}

// open verifies and decrypts an encryptedPayload. The authentication tag
// is checked before any plaintext is returned; any mismatch is an error.
func open(key []byte, p *encryptedPayload) ([]byte, error) {
	nonce, err := hex.DecodeString(p.Nonce)
	if err != nil {
		return nil, fmt.Errorf("hex decode nonce: %w", err)
	}
	tag, err := hex.DecodeString(p.Tag)
	if err != nil {
		return nil, fmt.Errorf("hex decode tag: %w", err)
	}
	ciphertext, err := hex.DecodeString(p.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("hex decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSize || len(tag) != tagSize {
		return nil, errors.New("malformed encrypted payload")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}
