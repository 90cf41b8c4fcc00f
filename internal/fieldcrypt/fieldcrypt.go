// Package fieldcrypt implements field-level encryption for patient contact
// data: AES-256-GCM for values and deterministic HMAC tokens for exact-match
// search over encrypted columns.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const keySize = 32

// Cipher encrypts and decrypts string fields with a 32-byte secret.
type Cipher struct {
	aead cipher.AEAD
	mac  []byte
}

// New creates a Cipher from the DATA_ENCRYPTION_KEY secret. The key must be
// exactly 32 bytes.
func New(key string) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("fieldcrypt: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init gcm: %w", err)
	}
	// Separate MAC key derived from the data key so search tokens never
	// reveal anything about ciphertexts.
	sum := sha256.Sum256([]byte("search:" + key))
	return &Cipher{aead: aead, mac: sum[:]}, nil
}

// Encrypt returns a base64 ciphertext with the nonce prefixed.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed ciphertext is an error.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: decode ciphertext: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("fieldcrypt: ciphertext too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: open ciphertext: %w", err)
	}
	return string(plain), nil
}

// SearchTokens returns deterministic tokens for exact-match lookup of the
// given values. Values are case-folded and trimmed before hashing.
func (c *Cipher) SearchTokens(values []string) []string {
	tokens := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		mac := hmac.New(sha256.New, c.mac)
		mac.Write([]byte(v))
		tokens = append(tokens, base64.RawURLEncoding.EncodeToString(mac.Sum(nil)))
	}
	return tokens
}
