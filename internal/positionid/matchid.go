package positionid

import "github.com/yourusername/bgquiz/internal/board"

// MatchIDLength is the length, in characters, of an encoded match ID.
const MatchIDLength = 12

// matchBytes is the buffer size backing the 66-bit match-context bitstream:
// 66 bits rounds up to 9 bytes (72 bits), with the top 6 bits of the last
// byte left at zero, exactly as matchBytes*8 - 66 == 6 unused trailing bits.
const matchBytes = 9

// matchID field widths and offsets, in bit-write order. Each field is
// written least-significant-bit first at the listed width.
const (
	fldCubeExponent  = 4
	fldCubeOwner     = 2
	fldRoller        = 1
	fldCrawford      = 1
	fldGameState     = 3
	fldDecisionOwner = 1
	fldDoubleOffered = 1
	fldResignation   = 2
	fldDie1          = 3
	fldDie2          = 3
	fldMatchLength   = 15
	fldScoreP1       = 15
	fldScoreP2       = 15
)

// GameState enumerates the match ID's 3-bit game-state field. Values are
// explicit per spec §4.2's table rather than iota order: gnubg reads
// game-state 0 as "no game in progress", so a playing game must encode as
// 1, not whatever position it happens to occupy in this list.
type GameState int

const (
	GameStateNone     GameState = 0
	GameStatePlaying  GameState = 1
	GameStateOver     GameState = 2
	GameStateResigned GameState = 3
	GameStateDoubled  GameState = 4
)

// MatchContext is the non-board context a match ID carries: whose turn it
// is (the roller — decoded before the position ID can be split into
// per-player slots), the cube, dice, game state, and match/score.
type MatchContext struct {
	CubeExponent  int // log2(board.CubeValue)
	CubeOwner     board.CubeOwner
	Roller        board.Player
	Crawford      bool
	GameState     GameState
	DecisionOwner board.Player
	DoubleOffered bool
	Resignation   int
	Dice          board.Dice
	MatchLength   int
	ScoreP1       int
	ScoreP2       int
}

// cubeOwnerCode/decodeCubeOwner map board.CubeOwner to/from the match ID's
// 2-bit field per spec §4.2's table (the real gnubg layout): 0 = P1,
// 1 = P2, 3 = centered. This is fed to gnubg verbatim via "set matchid", so
// getting the centered case wrong (a bare 0) would have it read the common
// centered-cube starting position as "P1 owns the cube".
func cubeOwnerCode(o board.CubeOwner) uint64 {
	switch o {
	case board.CubeP1:
		return 0
	case board.CubeP2:
		return 1
	default:
		return 3
	}
}

func decodeCubeOwner(v uint64) board.CubeOwner {
	switch v {
	case 0:
		return board.CubeP1
	case 1:
		return board.CubeP2
	default:
		return board.CubeNone
	}
}

func playerCode(p board.Player) uint64 {
	if p == board.P2 {
		return 1
	}
	return 0
}

func decodePlayer(v uint64) board.Player {
	if v == 1 {
		return board.P2
	}
	return board.P1
}

func boolCode(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// EncodeMatchID returns the 12-character match ID for mc.
func EncodeMatchID(mc MatchContext) string {
	data := make([]byte, matchBytes)
	bitPos := 0

	write := func(value uint64, width int) {
		writeField(data, bitPos, value, width)
		bitPos += width
	}

	write(uint64(mc.CubeExponent), fldCubeExponent)
	write(cubeOwnerCode(mc.CubeOwner), fldCubeOwner)
	write(playerCode(mc.Roller), fldRoller)
	write(boolCode(mc.Crawford), fldCrawford)
	write(uint64(mc.GameState), fldGameState)
	write(playerCode(mc.DecisionOwner), fldDecisionOwner)
	write(boolCode(mc.DoubleOffered), fldDoubleOffered)
	write(uint64(mc.Resignation), fldResignation)

	d1, d2 := mc.Dice.D1, mc.Dice.D2
	if !mc.Dice.Set {
		d1, d2 = 0, 0
	}
	write(uint64(d1), fldDie1)
	write(uint64(d2), fldDie2)
	write(uint64(mc.MatchLength), fldMatchLength)
	write(uint64(mc.ScoreP1), fldScoreP1)
	write(uint64(mc.ScoreP2), fldScoreP2)

	return base64Encode(data, MatchIDLength)
}

// DecodeMatchID decodes a 12-character match ID back into a MatchContext.
// Callers that also need the board layout must call this before decoding
// the companion position ID, since Roller determines how the position ID's
// two unary-encoded groups map onto board.Board.Checkers[P1] / [P2].
func DecodeMatchID(matchID string) (MatchContext, error) {
	var mc MatchContext
	if len(matchID) != MatchIDLength {
		return mc, ErrInvalidID
	}
	data, err := base64DecodeToBytes(matchID, matchBytes)
	if err != nil {
		return mc, err
	}

	bitPos := 0
	read := func(width int) uint64 {
		v := readField(data, bitPos, width)
		bitPos += width
		return v
	}

	mc.CubeExponent = int(read(fldCubeExponent))
	mc.CubeOwner = decodeCubeOwner(read(fldCubeOwner))
	mc.Roller = decodePlayer(read(fldRoller))
	mc.Crawford = read(fldCrawford) != 0
	mc.GameState = GameState(read(fldGameState))
	mc.DecisionOwner = decodePlayer(read(fldDecisionOwner))
	mc.DoubleOffered = read(fldDoubleOffered) != 0
	mc.Resignation = int(read(fldResignation))

	d1 := int(read(fldDie1))
	d2 := int(read(fldDie2))
	if d1 != 0 || d2 != 0 {
		mc.Dice = board.Dice{D1: d1, D2: d2, Set: true}
	}

	mc.MatchLength = int(read(fldMatchLength))
	mc.ScoreP1 = int(read(fldScoreP1))
	mc.ScoreP2 = int(read(fldScoreP2))

	return mc, nil
}
