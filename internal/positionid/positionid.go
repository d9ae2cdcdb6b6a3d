package positionid

import (
	"errors"

	"github.com/yourusername/bgquiz/internal/board"
)

// PositionIDLength is the length, in characters, of an encoded position ID.
const PositionIDLength = 14

// positionBytes is the fixed 80-bit (10-byte) buffer size for the unary
// position bitstream, before base64 encoding.
const positionBytes = 10

// ErrInvalidID is returned when a position or match ID string cannot be
// decoded: wrong length, an out-of-alphabet character, or (for position IDs)
// a decoded board that fails its at-rest invariants.
var ErrInvalidID = errors.New("positionid: invalid id")

// EncodePositionID returns the 14-character position ID for b, with b.Turn
// as the side to move. Slots are emitted side-to-move first, opponent
// second; within each side, points 1..24 then the bar (25). Checkers borne
// off (slot 0) are not part of the bitstream — they are implicit as
// 15 - sum(points, bar), exactly as in the teacher's TanBoard encoding.
func EncodePositionID(b board.Board) string {
	data := make([]byte, positionBytes)
	bitPos := 0

	roller := b.Turn
	order := [2]board.Player{roller, roller.Other()}

	for _, p := range order {
		for slot := 1; slot <= 25; slot++ {
			n := b.Checkers[p][slot]
			if n > 0 {
				setBits(data, bitPos, n)
			}
			bitPos += n + 1
		}
	}

	return base64Encode(data, PositionIDLength)
}

// DecodePositionID decodes a 14-character position ID into per-player
// checker counts (slots 1..25; slot 0 is left for the caller to fill in,
// since it is not recoverable from the bitstream alone — see
// ReconstructBoard). roller identifies which physical player the first
// unary group belongs to; per the data model, the roller bit lives in the
// match ID and must be known before this call, not derived from it.
func DecodePositionID(posID string, roller board.Player) (checkers [2][26]int, err error) {
	if len(posID) != PositionIDLength {
		return checkers, ErrInvalidID
	}
	data, err := base64DecodeToBytes(posID, positionBytes)
	if err != nil {
		return checkers, err
	}

	order := [2]board.Player{roller, roller.Other()}
	bitPos := 0

	for _, p := range order {
		for slot := 1; slot <= 25; slot++ {
			for bitPos < positionBytes*8 {
				bit := data[bitPos/8]&(1<<uint(bitPos%8)) != 0
				bitPos++
				if !bit {
					break
				}
				checkers[p][slot]++
			}
		}
	}

	return checkers, nil
}

// ReconstructBoard fills in slot 0 (checkers off) for each player so that
// each side sums to 15, completing a board decoded from a position ID plus
// whatever roller/cube/dice/score context came from the match ID.
func ReconstructBoard(checkers [2][26]int) ([2][26]int, error) {
	for p := 0; p < 2; p++ {
		sum := 0
		for slot := 1; slot <= 25; slot++ {
			sum += checkers[p][slot]
		}
		off := 15 - sum
		if off < 0 || off > 15 {
			return checkers, ErrInvalidID
		}
		checkers[p][0] = off
	}
	return checkers, nil
}
