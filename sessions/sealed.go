package sessions

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jrsteele09/go-habit-session/internal/errors"
)

// ErrUnsealFailed is returned when a sealed record cannot be decrypted, usually because the passphrase changed
var ErrUnsealFailed = errors.New("unable to unseal session record")

var sealedMagic = []byte("hss1")

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Sealed encrypts records before handing them to the wrapped Backend. The key is
// derived from a passphrase with Argon2id; each record carries its own salt and nonce
// and is bound to its storage key.
//
// Layout: magic | salt | nonce | ciphertext
type Sealed struct {
	backend    Backend
	passphrase []byte

	mu       sync.Mutex
	lastSalt []byte
	lastKey  []byte
}

var _ Backend = (*Sealed)(nil)

func NewSealed(backend Backend, passphrase string) (*Sealed, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("[NewSealed] empty passphrase")
	}
	return &Sealed{backend: backend, passphrase: []byte(passphrase)}, nil
}

// deriveKey caches the most recent salt/key pair.
func (s *Sealed) deriveKey(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKey != nil && bytes.Equal(s.lastSalt, salt) {
		return s.lastKey
	}
	key := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	s.lastSalt = append([]byte(nil), salt...)
	s.lastKey = key
	return key
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	headerSize := len(sealedMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(data) < headerSize+chacha20poly1305.Overhead || !bytes.HasPrefix(data, sealedMagic) {
		return nil, errors.Wrapf(ErrUnsealFailed, "[Sealed.Get] %s: not a sealed record", key)
	}
	salt := data[len(sealedMagic) : len(sealedMagic)+saltSize]
	nonce := data[len(sealedMagic)+saltSize : headerSize]

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, errors.Wrapf(err, "[Sealed.Get] %s", key)
	}
	plain, err := aead.Open(nil, nonce, data[headerSize:], []byte(key))
	if err != nil {
		return nil, errors.Wrapf(ErrUnsealFailed, "[Sealed.Get] %s", key)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, data []byte) error {
	salt, err := s.saltForWrite()
	if err != nil {
		return errors.Wrapf(err, "[Sealed.Set] salt")
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return errors.Wrapf(err, "[Sealed.Set] %s", key)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrapf(err, "[Sealed.Set] nonce")
	}

	out := make([]byte, 0, len(sealedMagic)+saltSize+len(nonce)+len(data)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, []byte(key))

	return s.backend.Set(ctx, key, out)
}

// saltForWrite reuses the cached salt so routine saves skip key derivation.
func (s *Sealed) saltForWrite() ([]byte, error) {
	s.mu.Lock()
	if s.lastSalt != nil {
		salt := append([]byte(nil), s.lastSalt...)
		s.mu.Unlock()
		return salt, nil
	}
	s.mu.Unlock()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}
