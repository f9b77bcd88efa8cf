// Package contentid derives stable identifiers for build artifacts.
//
// An ID is the Base58 (Bitcoin alphabet) encoding of the SHA-256 digest of
// the artifact bytes. The same bytes always produce the same ID.
package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// ErrInvalidID indicates a string that is not a well-formed content id.
var ErrInvalidID = errors.New("invalid content id")

// ID is a content-derived artifact identifier.
type ID string

// String returns the encoded identifier.
func (id ID) String() string {
	return string(id)
}

// AddressOf returns the content identifier for data.
func AddressOf(data []byte) ID {
	sum := sha256.Sum256(data)
	return ID(base58.EncodeAlphabet(sum[:], base58.BTCAlphabet))
}

// Parse validates an encoded identifier and returns it as an ID.
func Parse(value string) (ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	raw, err := base58.DecodeAlphabet(value, base58.BTCAlphabet)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("%w: decoded length %d", ErrInvalidID, len(raw))
	}
	return ID(value), nil
}

// Digest returns the raw SHA-256 digest behind the identifier.
func (id ID) Digest() ([]byte, error) {
	if _, err := Parse(string(id)); err != nil {
		return nil, err
	}
	return base58.DecodeAlphabet(string(id), base58.BTCAlphabet)
}

// DigestSet maps algorithm names to hex digests, in-toto style.
type DigestSet map[string]string

// Digests computes the digest set recorded next to an identifier.
func Digests(data []byte) DigestSet {
	sha := sha256.Sum256(data)
	b3 := blake3.Sum256(data)
	return DigestSet{
		"sha256": hex.EncodeToString(sha[:]),
		"blake3": hex.EncodeToString(b3[:]),
	}
}
