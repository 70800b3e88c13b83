package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// KeyEnv holds the key new values are sealed with.
	KeyEnv = "DISK_ENC_KEY"
	// PreviousKeysEnv holds retired keys, comma separated, that are still
	// accepted when opening values.
	PreviousKeysEnv = "DISK_ENC_KEY_PREVIOUS"
	// Prefix marks sealed string values.
	Prefix = "enc:"
)

var (
	// ErrNoKey is returned when a sealed value is opened without a key.
	ErrNoKey = errors.New("no encryption key configured")
	// ErrOpen is returned when no configured key opens a value.
	ErrOpen = errors.New("cannot decrypt value")
)

// Sealer encrypts string values with AES-GCM. The first key seals; every
// key is tried when opening. A nil *Sealer leaves values in clear text.
type Sealer struct {
	aeads []cipher.AEAD
}

// NewSealer builds a Sealer from raw keys of 16, 24 or 32 bytes.
func NewSealer(keys ...[]byte) (*Sealer, error) {
	if len(keys) == 0 {
		return nil, ErrNoKey
	}
	s := &Sealer{}
	for i, k := range keys {
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		s.aeads = append(s.aeads, gcm)
	}
	return s, nil
}

// FromEnv builds a Sealer from KeyEnv and PreviousKeysEnv. It returns nil
// without error when KeyEnv is unset. Keys are taken verbatim unless they
// start with "base64:".
func FromEnv() (*Sealer, error) {
	cur := os.Getenv(KeyEnv)
	if cur == "" {
		return nil, nil
	}
	var keys [][]byte
	for _, raw := range append([]string{cur}, strings.Split(os.Getenv(PreviousKeysEnv), ",")...) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		k, err := parseKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return NewSealer(keys...)
}

func parseKey(raw string) ([]byte, error) {
	if enc, ok := strings.CutPrefix(raw, "base64:"); ok {
		k, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
		return k, nil
	}
	return []byte(raw), nil
}

// Seal returns Prefix followed by the base64 of nonce and ciphertext. Every
// value is sealed, including ones that already carry Prefix. A nil Sealer
// returns v unchanged.
func (s *Sealer) Seal(v string) (string, error) {
	if s == nil {
		return v, nil
	}
	gcm := s.aeads[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := gcm.Seal(nonce, nonce, []byte(v), nil)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without Prefix are returned unchanged.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	if s == nil {
		return "", ErrNoKey
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	for _, gcm := range s.aeads {
		n := gcm.NonceSize()
		if len(b) < n {
			break
		}
		if plain, err := gcm.Open(nil, b[:n], b[n:], nil); err == nil {
			return string(plain), nil
		}
	}
	return "", ErrOpen
}

// IsSealed reports whether v carries Prefix.
func IsSealed(v string) bool { return strings.HasPrefix(v, Prefix) }
