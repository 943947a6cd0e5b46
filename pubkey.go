package solwire

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// PublicKeyLength is the byte length of an account address.
	PublicKeyLength = 32

	// SignatureLength is the byte length of an ed25519 transaction signature.
	SignatureLength = 64
)

// List of input parsing errors.
var (
	ErrInvalidPublicKey = errors.New("invalid public key input")
	ErrInvalidSignature = errors.New("invalid signature input")
)

// PublicKey is a 32-byte account address. Its text form is base58.
// The zero value encodes to "11111111111111111111111111111111", the
// system program address.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBase58 parses a base58-encoded account address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, errors.Wrapf(ErrInvalidPublicKey, "%q: %v", s, err)
	}
	if len(b) != PublicKeyLength {
		return pk, errors.Wrapf(ErrInvalidPublicKey, "%q: expected %d bytes, got %d", s, PublicKeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromBytes builds an address from a raw 32-byte slice.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, errors.Wrapf(ErrInvalidPublicKey, "expected %d bytes, got %d", PublicKeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKeyFromBase58 parses a base58-encoded address and panics on
// malformed input. Intended for program ids known at compile time.
func MustPublicKeyFromBase58(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// Bytes returns a copy of the raw address bytes.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, pk[:])
	return b
}

// IsZero reports whether the address is all zeros.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// String returns the base58 text form of the address.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// MarshalText implements encoding.TextMarshaler, so addresses encode as
// base58 strings in JSON envelopes.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Signature is a 64-byte ed25519 transaction signature. Its text form
// is base58.
type Signature [SignatureLength]byte

// SignatureFromBase58 parses a base58-encoded transaction signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, errors.Wrapf(ErrInvalidSignature, "%q: %v", s, err)
	}
	if len(b) != SignatureLength {
		return sig, errors.Wrapf(ErrInvalidSignature, "%q: expected %d bytes, got %d", s, SignatureLength, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// SignatureFromBytes builds a signature from a raw 64-byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, errors.Wrapf(ErrInvalidSignature, "expected %d bytes, got %d", SignatureLength, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// String returns the base58 text form of the signature.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := SignatureFromBase58(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Blockhash is a recent block hash in base58 text form, used to anchor
// transactions to a ledger position.
type Blockhash string

// Short returns a shortened form of the address for log fields.
func (pk PublicKey) Short() string {
	s := pk.String()
	if len(s) <= 8 {
		return s
	}
	return fmt.Sprintf("%s…%s", s[:4], s[len(s)-4:])
}
