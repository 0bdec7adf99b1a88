package crypto

import (
	"errors"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds, including the bump.
	MaxSeeds = 16
	// MaxSeedLength bounds the width of a single seed.
	MaxSeedLength = 32
)

var pdaMarker = []byte("ProgramDerivedAddress")

var (
	ErrMaxSeedLengthExceeded = errors.New("crypto: derived address seed too long or too many seeds")
	ErrInvalidSeeds          = errors.New("crypto: derived address lands on the ed25519 curve")
	ErrNoViableBump          = errors.New("crypto: unable to find a viable derived address bump")
)

// IsOnCurve reports whether the address decodes as an ed25519 point, i.e.
// whether some private key could sign for it.
func IsOnCurve(addr Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}

// CreateProgramAddress hashes the seeds together with the program id. The seeds
// must already contain the bump when one is used. Results on the ed25519 curve
// are rejected so that only the program can authorize as the derived address.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrMaxSeedLengthExceeded
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, ErrMaxSeedLengthExceeded
		}
		parts = append(parts, seed)
	}
	parts = append(parts, program[:], pdaMarker)

	var addr Address
	copy(addr[:], crypto.Keccak256(parts...))
	if IsOnCurve(addr) {
		return Address{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// derived address that is off the curve together with its bump.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedLengthExceeded
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// VerifyProgramAddress reports whether candidate is the canonical derived
// address of seeds under program.
func VerifyProgramAddress(candidate Address, seeds [][]byte, program Address) bool {
	addr, _, err := FindProgramAddress(seeds, program)
	if err != nil {
		return false
	}
	return addr == candidate
}
