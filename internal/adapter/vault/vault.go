// Package vault encrypts tenant credentials for storage with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// KeyLength is the required length of the configured secret.
const KeyLength = 32

const separator = ":"

// Compile-time check: Vault implements domain.CredentialVault.
var _ domain.CredentialVault = (*Vault)(nil)

// Vault encrypts and decrypts credential strings. Tokens have the form
// "<nonceHex>:<cipherHex>" where the cipher part includes the GCM tag.
// The derived key is read-only after construction.
type Vault struct {
	aead cipher.AEAD
}

// New derives a key from secret, which must be exactly KeyLength characters.
func New(secret string) (*Vault, error) {
	if len(secret) != KeyLength {
		return nil, domain.Wrap(domain.KindConfiguration,
			fmt.Sprintf("encryption key must be exactly %d characters", KeyLength), nil)
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "creating cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "creating cipher", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", domain.Wrap(domain.KindEncryptionFailure, "encryption failed", err)
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + separator + hex.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Malformed, truncated or tampered
// tokens fail with a decryption_failure error.
func (v *Vault) Decrypt(token string) (string, error) {
	nonceHex, cipherHex, ok := split(token)
	if !ok {
		return "", domain.Wrap(domain.KindDecryptionFailure, "invalid encrypted string format", nil)
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", domain.Wrap(domain.KindDecryptionFailure, "invalid encrypted string format", err)
	}
	sealed, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", domain.Wrap(domain.KindDecryptionFailure, "invalid encrypted string format", err)
	}

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", domain.Wrap(domain.KindDecryptionFailure, "decryption failed", err)
	}
	return string(plaintext), nil
}

// IsValidEncryptedString reports whether token has the stored format. It does
// not attempt decryption.
func (v *Vault) IsValidEncryptedString(token string) bool {
	_, _, ok := split(token)
	return ok
}

// split accepts exactly two non-empty lowercase hex parts. Uppercase is
// rejected so every token has a single valid spelling.
func split(token string) (string, string, bool) {
	parts := strings.Split(token, separator)
	if len(parts) != 2 {
		return "", "", false
	}
	for _, p := range parts {
		if p == "" || len(p)%2 != 0 || !isLowerHex(p) {
			return "", "", false
		}
	}
	return parts[0], parts[1], true
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
