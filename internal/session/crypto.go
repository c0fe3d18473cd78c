package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealedCredential = errors.New("cannot open sealed credential")

// Sealer encrypts credentials before they hit the session store and decrypts
// them on load. XChaCha20-Poly1305 with a key derived from the session secret;
// the random nonce is prepended to the ciphertext.
type Sealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal serializes and encrypts a credential.
func (s *Sealer) Seal(cred *Credential) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts and deserializes a sealed credential.
func (s *Sealer) Open(blob []byte) (*Credential, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealedCredential
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedCredential, err)
	}
	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedCredential, err)
	}
	return &cred, nil
}
