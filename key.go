package depot

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"math/bits"
	"strings"
)

const (
	// DigestSize is the raw key size in bytes.
	DigestSize = 16

	// KeyStringLen is the length of the textual key form.
	KeyStringLen = 26 // ceil(128 bits / 5 bits per char)
)

// Key identifies a node by the hash of its encoded bytes. The leading
// byte is not hash output: it carries a size-class tag derived from the
// encoded length, so keys are self-describing about approximate size.
type Key [DigestSize]byte

// ZeroKey is the absent key. It never identifies a stored node.
var ZeroKey Key

// Crockford base32: no i, l, o, u. Decoding folds case and maps the
// usual confusables back onto the canonical alphabet.
const keyAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var keyEncoding = base32.NewEncoding(keyAlphabet).WithPadding(base32.NoPadding)

// Applied after case folding, so lowercase mappings suffice.
var keyNormalizer = strings.NewReplacer("o", "0", "i", "1", "l", "1")

// IsZero reports whether k is the absent key.
func (k Key) IsZero() bool {
	return k == ZeroKey
}

// SizeClass returns the size-class tag byte: bits.Len64 of the encoded
// node length (0 for empty, 1 for 1 byte, 11 for 1KiB..2KiB-1, ...).
func (k Key) SizeClass() uint8 {
	return k[0]
}

func (k Key) String() string {
	return keyEncoding.EncodeToString(k[:])
}

// ParseKey parses the textual key form. Parsing is case-insensitive and
// tolerates the o/0 and i/l/1 confusions.
func ParseKey(s string) (Key, error) {
	if len(s) != KeyStringLen {
		return ZeroKey, fmt.Errorf("depot: key %q: want %d chars, got %d", s, KeyStringLen, len(s))
	}
	norm := keyNormalizer.Replace(strings.ToLower(s))
	raw, err := keyEncoding.DecodeString(norm)
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: key %q: %w", s, err)
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// KeyFromBytes builds a key from a raw digest.
func KeyFromBytes(raw []byte) (Key, error) {
	if len(raw) != DigestSize {
		return ZeroKey, fmt.Errorf("depot: digest has %d bytes, want %d", len(raw), DigestSize)
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// sizeClass buckets a payload length into a single tag byte.
func sizeClass(n int) uint8 {
	return uint8(bits.Len64(uint64(n)))
}

// keyForEncoded computes the key for canonically encoded node bytes:
// the provider digest with the leading byte replaced by the size tag.
func keyForEncoded(kp KeyProvider, encoded []byte) Key {
	k := kp.ComputeKey(encoded)
	k[0] = sizeClass(len(encoded))
	return k
}

// VerifyKey reports whether key is the content key of encoded under kp.
func VerifyKey(kp KeyProvider, key Key, encoded []byte) bool {
	want := keyForEncoded(kp, encoded)
	return bytes.Equal(want[:], key[:])
}
