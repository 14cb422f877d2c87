// Package account encodes signing keys used by the reference engine.
//
// A private key is "APrivateKey1" followed by the base58 ed25519 seed; the
// matching address is "aleo1" followed by the base58 public key.
package account

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	PrivateKeyPrefix = "APrivateKey1"
	AddressPrefix    = "aleo1"
)

var (
	ErrInvalidPrivateKey = errors.New("account: invalid private key")
	ErrInvalidAddress    = errors.New("account: invalid address")
)

type PrivateKey struct {
	key ed25519.PrivateKey
}

// Generate returns a fresh key drawn from r (crypto/rand when nil).
func Generate(r io.Reader) (PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return PrivateKey{}, fmt.Errorf("account: read seed: %w", err)
	}
	return PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func ParsePrivateKey(raw string) (PrivateKey, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(raw), PrivateKeyPrefix)
	if !ok || body == "" {
		return PrivateKey{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidPrivateKey, PrivateKeyPrefix)
	}
	seed, err := base58.Decode(body)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return PrivateKey{}, fmt.Errorf("%w: seed length %d", ErrInvalidPrivateKey, len(seed))
	}
	return PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k PrivateKey) String() string {
	if len(k.key) == 0 {
		return ""
	}
	return PrivateKeyPrefix + base58.Encode(k.key.Seed())
}

func (k PrivateKey) Address() Address {
	if len(k.key) == 0 {
		return Address{}
	}
	return Address{pub: k.key.Public().(ed25519.PublicKey)}
}

func (k PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}

// Address is the public half of an account.
type Address struct {
	pub ed25519.PublicKey
}

func ParseAddress(raw string) (Address, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(raw), AddressPrefix)
	if !ok || body == "" {
		return Address{}, fmt.Errorf("%w: missing %s prefix", ErrInvalidAddress, AddressPrefix)
	}
	pub, err := base58.Decode(body)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return Address{}, fmt.Errorf("%w: key length %d", ErrInvalidAddress, len(pub))
	}
	return Address{pub: pub}, nil
}

func (a Address) String() string {
	if len(a.pub) == 0 {
		return ""
	}
	return AddressPrefix + base58.Encode(a.pub)
}

func (a Address) Verify(msg []byte, sig []byte) bool {
	if len(a.pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(a.pub, msg, sig)
}
