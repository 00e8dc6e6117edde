package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bookloop/orderflow/pkg/config"
)

// ErrInvalidCiphertext signals a value that is not a sealed box for this key.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// SealBox encrypts short secrets such as bank account numbers with
// XChaCha20-Poly1305. Sealed values are base64(nonce || ciphertext).
type SealBox struct {
	aead cipher.AEAD
}

// NewSealBox builds a SealBox from the base64 encoded 32 byte banking key.
func NewSealBox(cfg config.BankingConfig) (*SealBox, error) {
	encoded := strings.TrimSpace(cfg.EncryptionKey)
	if encoded == "" {
		return nil, fmt.Errorf("banking encryption key is required")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode banking encryption key: %w", err)
	}
	return NewSealBoxFromKey(key)
}

func NewSealBoxFromKey(key []byte) (*SealBox, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("banking encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init xchacha20poly1305: %w", err)
	}
	return &SealBox{aead: aead}, nil
}

func (s *SealBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *SealBox) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
