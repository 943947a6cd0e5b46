// Package pda derives program-owned account addresses. A program
// derived address (PDA) is the sha256 digest of a seed list, a program
// id and a fixed domain suffix, accepted only when the digest is NOT a
// valid ed25519 point: an off-curve address has no private key, so only
// the owning program can sign for it.
//
// Every function here is a pure function of its inputs. The package
// holds no state and is safe for unrestricted concurrent use.
package pda

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"

	solwire "github.com/status-im/solwire-go"
)

const (
	// MaxSeeds is the maximum seed count a single derivation accepts,
	// counting the bump seed FindProgramAddress appends.
	MaxSeeds = 16

	// MaxSeedLength is the maximum byte length of one seed.
	MaxSeedLength = 32

	// MaxBump is the first bump value FindProgramAddress tries. The
	// search walks downward and stops after bump 1: bump 0 is never
	// tried, matching the reference derivation.
	MaxBump = 255
)

// derivedAddressSuffix domain-separates PDA digests from other sha256
// uses of the same inputs.
var derivedAddressSuffix = []byte("ProgramDerivedAddress")

// List of derivation errors. ErrSeedTooLong and ErrTooManySeeds are
// input errors raised before any hashing; ErrInvalidSeeds and
// ErrNoViableBump mean no derivation exists for the inputs.
var (
	ErrSeedTooLong  = errors.New("seed exceeds the 32-byte maximum")
	ErrTooManySeeds = errors.New("too many seeds")
	ErrInvalidSeeds = errors.New("invalid seeds, address must fall off the curve")
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
)

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return errors.Wrapf(ErrTooManySeeds, "%d seeds, maximum is %d", len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return errors.Wrapf(ErrSeedTooLong, "seed %d is %d bytes", i, len(seed))
		}
	}
	return nil
}

// CreateProgramAddress derives the address for an explicit seed list,
// bump included if the caller wants one. It returns ErrInvalidSeeds
// when the digest lands on the curve; callers searching for a valid
// address use FindProgramAddress instead.
func CreateProgramAddress(seeds [][]byte, programID solwire.PublicKey) (solwire.PublicKey, error) {
	if err := validateSeeds(seeds); err != nil {
		return solwire.PublicKey{}, err
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(derivedAddressSuffix)

	var addr solwire.PublicKey
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr) {
		return solwire.PublicKey{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches for the first off-curve address derived
// from seeds plus a bump byte, scanning the bump downward from MaxBump.
// It returns the address together with the bump that produced it, so
// callers can later rebuild the address with CreateProgramAddress.
//
// The result is a pure function of (seeds, programID): equal inputs
// always yield the same (address, bump) pair.
func FindProgramAddress(seeds [][]byte, programID solwire.PublicKey) (solwire.PublicKey, uint8, error) {
	if err := validateSeeds(seeds); err != nil {
		return solwire.PublicKey{}, 0, err
	}
	// The bump occupies a seed slot of its own.
	if len(seeds) >= MaxSeeds {
		return solwire.PublicKey{}, 0, errors.Wrapf(ErrTooManySeeds, "%d seeds leave no room for the bump, maximum is %d", len(seeds), MaxSeeds-1)
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)

	for bump := MaxBump; bump > 0; bump-- {
		seedsWithBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(seedsWithBump, programID)
		if err != nil {
			if errors.Is(err, ErrInvalidSeeds) {
				continue
			}
			return solwire.PublicKey{}, 0, err
		}
		return addr, uint8(bump), nil
	}
	return solwire.PublicKey{}, 0, ErrNoViableBump
}

// CreateWithSeed derives an address from a base key, an UTF-8 seed
// string and a program id: sha256(base ‖ seed ‖ programID). No domain
// suffix, no bump search, and no off-curve requirement. The scheme
// predates PDAs and is kept for accounts funded on behalf of a base
// key.
func CreateWithSeed(base solwire.PublicKey, seed string, programID solwire.PublicKey) (solwire.PublicKey, error) {
	if len(seed) > MaxSeedLength {
		return solwire.PublicKey{}, errors.Wrapf(ErrSeedTooLong, "seed is %d bytes", len(seed))
	}

	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(programID[:])

	var addr solwire.PublicKey
	copy(addr[:], h.Sum(nil))
	return addr, nil
}

// IsOnCurve reports whether the 32 bytes decompress to a valid ed25519
// point, i.e. whether the address could belong to a keypair. The test
// is the exact point decompression, not a heuristic: program-owned
// addresses must fail it, keypair addresses must pass it.
func IsOnCurve(pk solwire.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}
