package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/scrypt"
)

const sealedFormat = "keyforge-sealed/aes-256-gcm+scrypt"

// ErrSealed is returned when a sealed document is read without a passphrase
// or with the wrong one.
var ErrSealed = errors.New("key document is sealed")

// SealerConfig holds the key derivation parameters
type SealerConfig struct {
	N      int // scrypt CPU/memory cost
	R      int
	P      int
	KeyLen int // 32 for AES-256
}

// DefaultSealerConfig returns OWASP-minimum scrypt parameters
func DefaultSealerConfig() SealerConfig {
	return SealerConfig{N: 32768, R: 8, P: 1, KeyLen: 32}
}

// sealedPayload is the at-rest envelope. []byte fields encode as base64.
type sealedPayload struct {
	Format     string `json:"format"`
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	SealedAt   int64  `json:"sealed_at"`
}

// Sealer encrypts the key document at rest with a passphrase-derived key.
// A fresh salt and nonce are drawn for every Seal.
type Sealer struct {
	passphrase []byte
	cfg        SealerConfig
}

// NewSealer returns a Sealer for passphrase
func NewSealer(passphrase string, cfg SealerConfig) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("sealer: passphrase is required")
	}
	if cfg.N < 2 || cfg.N&(cfg.N-1) != 0 {
		return nil, fmt.Errorf("sealer: scrypt N must be a power of two, got %d", cfg.N)
	}
	if cfg.KeyLen != 16 && cfg.KeyLen != 24 && cfg.KeyLen != 32 {
		return nil, fmt.Errorf("sealer: invalid key length %d", cfg.KeyLen)
	}
	return &Sealer{passphrase: []byte(passphrase), cfg: cfg}, nil
}

func (s *Sealer) gcm(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, s.cfg.N, s.cfg.R, s.cfg.P, s.cfg.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext into an envelope document
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return json.MarshalIndent(sealedPayload{
		Format:     sealedFormat,
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, []byte(sealedFormat)),
		SealedAt:   time.Now().Unix(),
	}, "", "  ")
}

// Open decrypts an envelope produced by Seal
func (s *Sealer) Open(data []byte) ([]byte, error) {
	var p sealedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode sealed document: %w", err)
	}
	if p.Format != sealedFormat || p.Version != 1 {
		return nil, fmt.Errorf("unsupported sealed document %q v%d", p.Format, p.Version)
	}
	aead, err := s.gcm(p.Salt)
	if err != nil {
		return nil, err
	}
	if len(p.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrSealed)
	}
	plain, err := aead.Open(nil, p.Nonce, p.Ciphertext, []byte(sealedFormat))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrSealed)
	}
	return plain, nil
}

// isSealed reports whether data is a sealed envelope rather than a plain
// document. Only the top-level object counts: a plain document carries a
// "keys" array and may hold the format string inside any record field.
func isSealed(data []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return false
	}
	if _, ok := top["keys"]; ok {
		return false
	}
	raw, ok := top["format"]
	if !ok {
		return false
	}
	var format string
	if err := json.Unmarshal(raw, &format); err != nil {
		return false
	}
	return format == sealedFormat
}
