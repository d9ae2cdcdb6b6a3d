// Package analyzer implements the per-ply analysis driver (spec.md §4.5,
// C4): it replays a parsed match ply by ply, asks the engine for ranked
// candidate moves at each move half-ply, locates the played move in that
// ranking, and turns moves that lag the best candidate by at least a
// threshold into quiz records.
//
// The single equity-loss threshold generalizes the teacher's four-bucket
// engine.ClassifySkill (pkg/engine/tutor.go: very-bad/bad/doubtful/none at
// fixed gnubg cutoffs) into the one configurable cutoff spec.md calls for;
// everything past classification — candidate ranking, distractor sampling —
// is new to this package.
package analyzer

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/board"
	"github.com/yourusername/bgquiz/internal/canon"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/positionid"
	"github.com/yourusername/bgquiz/internal/quizmodel"
	"github.com/yourusername/bgquiz/internal/transcript"
)

// Options configures one analysis pass.
type Options struct {
	// UserName restricts scoring to plies played by this name; empty means
	// every player's moves are scored.
	UserName string
	Threshold float64
}

// EngineDriver is the subset of *engineproc.Driver this package calls; an
// interface so tests can substitute a fake engine without launching a real
// child process.
type EngineDriver interface {
	AnalyzePosition(ctx context.Context, gnuID string, dice *board.Dice) (engineproc.Response, error)
}

// Analyzer walks matches against an engine driver.
type Analyzer struct {
	driver EngineDriver
	log    zerolog.Logger
}

func New(driver EngineDriver, log zerolog.Logger) *Analyzer {
	return &Analyzer{driver: driver, log: log}
}

// AnalyzeMatch implements spec.md §4.5's algorithm end to end for one
// parsed match, returning quiz records sorted by equityDiff descending
// (ties broken by insertion order, via a stable sort).
func (a *Analyzer) AnalyzeMatch(ctx context.Context, m *transcript.Match, opts Options) ([]quizmodel.Record, int, error) {
	var records []quizmodel.Record
	skipped := 0

	for _, game := range m.Games {
		b := board.StartingPosition()
		if m.MatchLength != nil {
			b.MatchLength = *m.MatchLength
		}
		if game.StartingScore[0] != nil {
			b.Score[0] = *game.StartingScore[0]
		}
		if game.StartingScore[1] != nil {
			b.Score[1] = *game.StartingScore[1]
		}

		for plyIdx, ply := range game.Plies {
			for side, half := range []transcript.HalfPly{ply.P1, ply.P2} {
				player := board.Player(side)
				if half.Kind != transcript.KindMove {
					continue
				}
				if half.Dice[0] == 0 && half.Dice[1] == 0 {
					continue
				}

				b.Turn = player
				b.Dice = board.Dice{D1: half.Dice[0], D2: half.Dice[1], Set: true}

				playerName := derefString(game.Player1)
				if player == board.P2 {
					playerName = derefString(game.Player2)
				}
				if opts.UserName != "" && playerName != opts.UserName {
					b.ApplyMoveParts(player, toBoardParts(half.Parts))
					continue
				}

				gnuID := toGnuID(b)

				resp, err := a.driver.AnalyzePosition(ctx, gnuID, &b.Dice)
				if err != nil || !resp.EngineAvailable || len(resp.Candidates) == 0 {
					if err != nil {
						a.log.Warn().Err(err).Msg("analyzer: engine call failed, skipping ply")
					}
					skipped++
					b.ApplyMoveParts(player, toBoardParts(half.Parts))
					continue
				}

				userParts := toCanonTokens(half.Parts)
				userRank := -1
				for i, c := range resp.Candidates {
					if canon.EqualTokens(c.Parts, userParts) {
						userRank = i
						break
					}
				}

				if userRank == -1 {
					// Played move isn't among the ranked candidates at all;
					// there is no rank or equity to compare, so the ply is
					// counted as skipped and no record is made.
					skipped++
					b.ApplyMoveParts(player, toBoardParts(half.Parts))
					continue
				}

				best := resp.Candidates[0]
				user := resp.Candidates[userRank]
				if best.Equity == nil || user.Equity == nil {
					// No numeric equity to compare (mwc-only or absent):
					// spec.md §4.5.5 requires both equities be numeric.
					skipped++
					b.ApplyMoveParts(player, toBoardParts(half.Parts))
					continue
				}
				equityDiff := *best.Equity - *user.Equity
				if equityDiff >= opts.Threshold {
					rec := quizmodel.Record{
						Type:  "move",
						GnuID: gnuID,
						Best:  quizmodel.MoveEquity{Move: best.MoveText, Equity: *best.Equity},
						User: quizmodel.UserMove{
							Move:   user.MoveText,
							Equity: *user.Equity,
							Rank:   userRank,
						},
						Context: quizmodel.Context{
							GameNumber: game.Number,
							PlyIndex:   plyIdx,
							Player:     player,
							Dice:       [2]int{half.Dice[0], half.Dice[1]},
							EquityDiff: equityDiff,
						},
						UserName: playerName,
					}
					rec.HigherSample = pickHigherSample(resp.Candidates, userRank)
					rec.LowerSample = pickLowerSample(resp.Candidates, userRank)
					rec.ID = quizmodel.ComputeID(gnuID, player, game.Number, plyIdx, playerName)
					records = append(records, rec)
				} else {
					skipped++
				}

				b.ApplyMoveParts(player, toBoardParts(half.Parts))
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Context.EquityDiff > records[j].Context.EquityDiff
	})
	return records, skipped, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toBoardParts(parts []transcript.Part) []board.Part {
	out := make([]board.Part, len(parts))
	for i, p := range parts {
		out[i] = board.Part{From: p.From, To: p.To, Hit: p.Hit}
	}
	return out
}

func toCanonTokens(parts []transcript.Part) []canon.Token {
	cp := make([]canon.Part, len(parts))
	for i, p := range parts {
		cp[i] = canon.Part{From: p.From, To: p.To, Hit: p.Hit}
	}
	return canon.FromParts(cp)
}

func toGnuID(b board.Board) string {
	posID, matchID := positionid.EncodeGnuID(b)
	return posID + ":" + matchID
}

// pickHigherSample implements step 4.5.6: when the user played second-best
// (rank 1) it returns candidates[2], the move ranked just below the user's,
// or nil if there is none; otherwise it samples uniformly from everything
// ranked above the user's move, using a
// cryptographic RNG so distractor choice cannot be replayed by an
// adversary who has seen prior quizzes for the same position.
func pickHigherSample(candidates []engineproc.Candidate, userRank int) *quizmodel.MoveEquity {
	if userRank <= 0 {
		return nil
	}
	if userRank == 1 {
		if len(candidates) > 2 {
			return candidateSample(candidates[2])
		}
		return nil
	}
	idx := randIntn(userRank) // uniform over [0, userRank-1]
	return candidateSample(candidates[idx])
}

// candidateSample converts an engine candidate into a MoveEquity sample,
// or nil if the candidate carries no numeric equity to show.
func candidateSample(c engineproc.Candidate) *quizmodel.MoveEquity {
	if c.Equity == nil {
		return nil
	}
	return &quizmodel.MoveEquity{Move: c.MoveText, Equity: *c.Equity}
}

// pickLowerSample implements step 4.5.7: sample uniformly from the window
// immediately below the user's rank.
func pickLowerSample(candidates []engineproc.Candidate, userRank int) *quizmodel.MoveEquity {
	if userRank < 0 || userRank+1 >= len(candidates) {
		return nil
	}
	hi := userRank + 2
	if hi > len(candidates)-1 {
		hi = len(candidates) - 1
	}
	span := hi - (userRank + 1) + 1
	idx := userRank + 1 + randIntn(span)
	return candidateSample(candidates[idx])
}

func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
