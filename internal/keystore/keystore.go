// Package keystore holds the asymmetric signing keys used to mint and
// verify access/refresh tokens. Grounded on dex's storage.Keys /
// VerificationKey shape (storage/storage.go) and signer.Signer interface
// (signer/signer.go), generalized into a self-contained in-process key
// store backed by gopkg.in/square/go-jose.v2.
package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	jose "gopkg.in/square/go-jose.v2"
)

// VerificationKey is a rotated-out signing key that remains valid for
// verifying previously issued tokens.
type VerificationKey struct {
	Public *jose.JSONWebKey
	Expiry time.Time
}

// Store holds the active signing key plus any still-valid rotated-out
// keys. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	active   *jose.JSONWebKey
	verify   []VerificationKey
	keyBits  int
	retained time.Duration
}

// NewFromRSAKey constructs a Store whose active signing key wraps the given
// RSA private key (e.g. loaded from TOKEN_SIGNING_KEY per spec.md section
// 6). retained controls how long a rotated-out key stays verifiable.
func NewFromRSAKey(key *rsa.PrivateKey, keyID string, retained time.Duration) *Store {
	jwk := &jose.JSONWebKey{
		Key:       key,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
	return &Store{active: jwk, keyBits: key.N.BitLen(), retained: retained}
}

// NewGenerated creates a Store with a freshly generated RSA-2048 signing
// key, for tests and local development (genkeys CLI subcommand).
func NewGenerated(keyID string, retained time.Duration) (*Store, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("keystore: generating key: %w", err)
	}
	return NewFromRSAKey(key, keyID, retained), nil
}

// Signer returns a jose.Signer bound to the active key.
func (s *Store) Signer() (jose.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: s.active}, nil)
}

// ActiveKeyID returns the kid of the currently active signing key.
func (s *Store) ActiveKeyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.KeyID
}

// JWKS returns the public JWK set: the active key plus every
// still-verifiable rotated-out key, supporting rotation without breaking
// in-flight tokens (spec.md section 3/4.5).
func (s *Store) JWKS() jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{s.active.Public()}}
	now := time.Now()
	for _, vk := range s.verify {
		if vk.Expiry.After(now) {
			set.Keys = append(set.Keys, *vk.Public)
		}
	}
	return set
}

// Rotate replaces the active key with newKey, moving the old active key
// into the verification set for s.retained.
func (s *Store) Rotate(newKey *rsa.PrivateKey, keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.active
	pub := old.Public()
	s.verify = append(s.verify, VerificationKey{
		Public: &pub,
		Expiry: time.Now().Add(s.retained),
	})
	s.active = &jose.JSONWebKey{
		Key:       newKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// VerificationKeySet returns every key (active + still-valid rotated) that
// can verify a signature, for use by jose.JSONWebSignature.Verify callers
// that want to try each candidate key.
func (s *Store) VerificationKeySet() []*jose.JSONWebKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub := s.active.Public()
	keys := []*jose.JSONWebKey{&pub}
	now := time.Now()
	for _, vk := range s.verify {
		if vk.Expiry.After(now) {
			keys = append(keys, vk.Public)
		}
	}
	return keys
}
