package positionid

import "github.com/yourusername/bgquiz/internal/board"

// EncodeGnuID returns the (positionID, matchID) pair for b. Separate
// functions because the two IDs are independent bitstreams, but callers
// almost always want both together — the combined "positionID:matchID"
// string is how gnubg and the source site both render a position.
func EncodeGnuID(b board.Board) (posID, matchID string) {
	mc := MatchContext{
		CubeExponent:  cubeExponent(b.CubeValue),
		CubeOwner:     b.CubeOwner,
		Roller:        b.Turn,
		GameState:     GameStatePlaying,
		DecisionOwner: b.Turn,
		Dice:          b.Dice,
		MatchLength:   b.MatchLength,
		ScoreP1:       b.Score[board.P1],
		ScoreP2:       b.Score[board.P2],
	}
	return EncodePositionID(b), EncodeMatchID(mc)
}

// DecodeGnuID decodes a positionID/matchID pair back into a board.Board.
// The match ID is decoded first to recover the roller, which is required
// before the position ID's two unary-encoded groups can be assigned to the
// correct player slot in board.Board.Checkers — decoding them in the other
// order silently swaps the two players' boards.
func DecodeGnuID(posID, matchID string) (board.Board, error) {
	var b board.Board

	mc, err := DecodeMatchID(matchID)
	if err != nil {
		return b, err
	}

	checkers, err := DecodePositionID(posID, mc.Roller)
	if err != nil {
		return b, err
	}
	checkers, err = ReconstructBoard(checkers)
	if err != nil {
		return b, err
	}

	b.Checkers = checkers
	b.CubeValue = 1 << uint(mc.CubeExponent)
	b.CubeOwner = mc.CubeOwner
	b.Turn = mc.Roller
	b.Dice = mc.Dice
	b.MatchLength = mc.MatchLength
	b.Score[board.P1] = mc.ScoreP1
	b.Score[board.P2] = mc.ScoreP2

	return b, nil
}

// cubeExponent returns log2(v) for a power-of-two cube value; for any other
// v it returns floor(log2(v)), and 0 when v <= 1 (callers are expected to
// have validated the board already via board.Board.CheckInvariants).
func cubeExponent(v int) int {
	exp := 0
	for v > 1 {
		v >>= 1
		exp++
	}
	return exp
}
