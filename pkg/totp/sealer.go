package totp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	AESKeySize = 32 // Required key size for AES-256

	sealerInfo = "elevate-totp-secret-v1"
)

// SealerConfig carries the master key used to protect secrets at rest.
type SealerConfig struct {
	EncryptionKey string `env:"TOTP_ENCRYPTION_KEY,required"` // base64, 32 bytes
}

// Sealer encrypts TOTP secrets with AES-256-GCM before they reach storage.
// The data key is derived from the master key with HKDF-SHA256 so the master key
// is never used for encryption directly.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the data key from a 32-byte master key.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != AESKeySize {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, ErrInvalidEncryptionKeyLength)
	}

	dataKey := make([]byte, AESKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealerInfo)), dataKey); err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}

	return &Sealer{aead: aead}, nil
}

// NewSealerFromConfig decodes the base64 master key from cfg.
func NewSealerFromConfig(cfg SealerConfig) (*Sealer, error) {
	if cfg.EncryptionKey == "" {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, ErrEncryptionKeyNotSet)
	}
	key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	return NewSealer(key)
}

// Seal encrypts plainText and returns base64(nonce || ciphertext || tag).
// additionalData binds the ciphertext to its owner, e.g. the principal id.
func (s *Sealer) Seal(plainText, additionalData string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrFailedToEncryptSecret, err)
	}

	cipherText := s.aead.Seal(nonce, nonce, []byte(plainText), []byte(additionalData))
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open reverses Seal. additionalData must match the value used when sealing.
func (s *Sealer) Open(sealed, additionalData string) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errors.Join(ErrFailedToDecryptSecret, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(cipherText) < nonceSize {
		return "", errors.Join(ErrFailedToDecryptSecret, ErrInvalidCipherTooShort)
	}
	nonce, cipherText := cipherText[:nonceSize], cipherText[nonceSize:]

	plainText, err := s.aead.Open(nil, nonce, cipherText, []byte(additionalData))
	if err != nil {
		return "", errors.Join(ErrFailedToDecryptSecret, err)
	}
	return string(plainText), nil
}

// GenerateEncodedEncryptionKey returns a fresh base64 master key for TOTP_ENCRYPTION_KEY.
func GenerateEncodedEncryptionKey() (string, error) {
	key := make([]byte, AESKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
