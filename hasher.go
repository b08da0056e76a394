package depot

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// KeyProvider computes a deterministic fixed-length digest from node
// bytes. Implementations must be pure: identical input, identical
// digest, no I/O. The engine is otherwise hash-algorithm-agnostic.
type KeyProvider interface {
	ComputeKey(data []byte) Key
}

// HashKeySize is the secret key length for the keyed provider.
const HashKeySize = 32

// blake3Provider is the default KeyProvider: a BLAKE3 keyed hash
// truncated to DigestSize bytes.
type blake3Provider struct {
	key [HashKeySize]byte
}

// NewKeyedProvider returns a provider computing keyed BLAKE3 digests.
// The key must be exactly HashKeySize bytes.
func NewKeyedProvider(secret []byte) (KeyProvider, error) {
	if len(secret) != HashKeySize {
		return nil, fmt.Errorf("depot: hash key has %d bytes, want %d", len(secret), HashKeySize)
	}
	p := &blake3Provider{}
	copy(p.key[:], secret)
	return p, nil
}

func (p *blake3Provider) ComputeKey(data []byte) Key {
	h, err := blake3.NewKeyed(p.key[:])
	if err != nil {
		// NewKeyed only fails on a wrong key length, checked at construction.
		panic("depot: keyed hasher: " + err.Error())
	}
	h.Write(data)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// plainProvider hashes without a secret key. Suitable for tests and
// single-tenant stores.
type plainProvider struct{}

// NewPlainProvider returns an unkeyed BLAKE3 provider.
func NewPlainProvider() KeyProvider {
	return plainProvider{}
}

func (plainProvider) ComputeKey(data []byte) Key {
	sum := blake3.Sum256(data)
	var k Key
	copy(k[:], sum[:DigestSize])
	return k
}
