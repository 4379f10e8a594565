package pyth

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"pyth-price-guard/internal/domain"
)

// PushOracleProgram is the Pyth push oracle program that owns sponsored
// price feed accounts on Solana mainnet.
const PushOracleProgram = "pythWSnswVUd12oZpeFP8e9CVececfVzUJGMQMENpyth"

// ErrNoBumpFound is returned when no bump seed yields an off-curve
// address. Practically unreachable for real seeds.
var ErrNoBumpFound = errors.New("no valid program derived address bump")

// PriceFeedAccount derives the base58 address of the push oracle price
// feed account for a (shard, feed) pair. Seeds are the little-endian
// shard id followed by the feed identifier.
func PriceFeedAccount(shard uint16, feedID domain.FeedID) (string, error) {
	programID, err := base58.Decode(PushOracleProgram)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	var shardSeed [2]byte
	binary.LittleEndian.PutUint16(shardSeed[:], shard)

	addr, _, err := findProgramAddress([][]byte{shardSeed[:], feedID[:]}, programID)
	return addr, err
}

// findProgramAddress searches bump seeds from 255 downward for the
// first off-curve derived address, per the Solana PDA algorithm.
func findProgramAddress(seeds [][]byte, programID []byte) (string, byte, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// A PDA must not be a valid ed25519 point: no private key may
		// exist for it.
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}
	return "", 0, ErrNoBumpFound
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
