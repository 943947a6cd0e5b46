// Package keys holds ed25519 signing keypairs and their import paths:
// random generation, raw seed, 64-byte secret key, base58 and BIP39
// mnemonic.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"

	solwire "github.com/status-im/solwire-go"
)

// mnemonicEntropyBits yields 24-word mnemonics.
const mnemonicEntropyBits = 256

// List of keypair import errors.
var (
	ErrInvalidSeed      = errors.New("seed must be 32 bytes")
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrInvalidMnemonic  = errors.New("invalid bip39 mnemonic")
)

// Keypair is an ed25519 signing key. The zero value is unusable, build
// one with New or the From helpers. Keypair implements solwire.Signer.
type Keypair struct {
	priv ed25519.PrivateKey
}

var _ solwire.Signer = (*Keypair)(nil)

// New generates a keypair from crypto/rand.
func New() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

// FromSeed builds the keypair deterministically from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Wrapf(ErrInvalidSeed, "got %d bytes", len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// FromBytes imports a 64-byte secret key, seed followed by public key.
// The public half is recomputed from the seed and must match, which
// catches truncated or spliced key material.
func FromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidSecretKey, "got %d bytes, want %d", len(b), ed25519.PrivateKeySize)
	}
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !bytes.Equal(priv[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
		return nil, errors.Wrap(ErrInvalidSecretKey, "public key half does not match the seed")
	}
	return &Keypair{priv: priv}, nil
}

// FromBase58 imports a base58-encoded 64-byte secret key.
func FromBase58(s string) (*Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSecretKey, err.Error())
	}
	return FromBytes(b)
}

// FromMnemonic derives a keypair from a BIP39 mnemonic and an optional
// passphrase. The first 32 bytes of the BIP39 seed feed the ed25519
// seed, so the same mnemonic and passphrase always yield the same key.
func FromMnemonic(mnemonic, passphrase string) (*Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return FromSeed(seed[:ed25519.SeedSize])
}

// NewMnemonic returns a fresh 24-word BIP39 mnemonic suitable for
// FromMnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// PublicKey returns the verifying half of the keypair.
func (k *Keypair) PublicKey() solwire.PublicKey {
	pub, _ := solwire.PublicKeyFromBytes(k.priv.Public().(ed25519.PublicKey))
	return pub
}

// Sign signs payload with the private key.
func (k *Keypair) Sign(payload []byte) ([]byte, error) {
	if len(k.priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidSecretKey
	}
	return ed25519.Sign(k.priv, payload), nil
}

// Bytes returns a copy of the 64-byte secret key.
func (k *Keypair) Bytes() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

// Seed returns a copy of the 32-byte seed.
func (k *Keypair) Seed() []byte {
	return k.priv.Seed()
}

// String returns the base58 public key, never key material.
func (k *Keypair) String() string {
	return k.PublicKey().String()
}
