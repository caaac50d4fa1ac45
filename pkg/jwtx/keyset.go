package jwtx

import (
	"crypto/ed25519"
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

// KeySet holds the Ed25519 verification keys by kid. Safe for concurrent
// use; the JWKS refresher swaps its contents while requests verify.
type KeySet struct {
	mu  sync.RWMutex
	pub map[string]ed25519.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]ed25519.PublicKey)}
}

// Add registers a public key under kid, replacing any previous one.
func (k *KeySet) Add(kid string, pub ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[kid] = pub
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// Len returns the number of keys loaded.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub)
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool { return k.Len() > 0 }

// ResetFromJWKS replaces all keys from a JWKS. Non Ed25519 entries are
// skipped; a set with no usable key is rejected and the old keys stay.
func (k *KeySet) ResetFromJWKS(set JWKS) (int, error) {
	next := make(map[string]ed25519.PublicKey, len(set.Keys))
	for _, j := range set.Keys {
		if j.Kid == "" {
			continue
		}
		pub, err := j.PublicKey()
		if err != nil {
			continue
		}
		next[j.Kid] = pub
	}
	if len(next) == 0 {
		return 0, errors.New("jwtx: jwks has no usable Ed25519 keys")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	return len(next), nil
}
