// Package quizmodel defines the quiz-record shape and the pure functions
// that operate on it: content-addressed id hashing, merge-on-write,
// record-result counters, and priority selection. Nothing here touches
// storage — internal/quizstore wraps these functions in SQLite
// transactions.
package quizmodel

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/yourusername/bgquiz/internal/board"
)

// MoveEquity pairs a move's text with its engine-assigned equity.
type MoveEquity struct {
	Move   string  `json:"move"`
	Equity float64 `json:"equity"`
}

// UserMove is the player's own played move, with its rank (0-indexed) in
// the engine's candidate ranking.
type UserMove struct {
	Move   string  `json:"move"`
	Equity float64 `json:"equity"`
	Rank   int     `json:"rank"`
}

// Context carries the ply-level facts needed to reconstruct and display a
// quiz's position.
type Context struct {
	GameNumber int          `json:"gameNumber"`
	PlyIndex   int          `json:"plyIndex"`
	Player     board.Player `json:"player"`
	Dice       [2]int       `json:"dice"`
	EquityDiff float64      `json:"equityDiff"`
}

// Counters tracks how often a quiz has been played and answered correctly.
type Counters struct {
	PlayCount      int `json:"playCount"`
	CorrectAnswers int `json:"correctAnswers"`
}

// Record is one persisted multiple-choice quiz question.
type Record struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	GnuID         string      `json:"gnuId"`
	Best          MoveEquity  `json:"best"`
	User          UserMove    `json:"user"`
	HigherSample  *MoveEquity `json:"higherSample,omitempty"`
	LowerSample   *MoveEquity `json:"lowerSample,omitempty"`
	Context       Context     `json:"context"`
	Quiz          Counters    `json:"quiz"`
	UserName      string      `json:"userName"`
}

// ComputeID hashes the record's identity fields into a stable 16-hex-char
// id: equal (gnuId, player, gameNumber, plyIndex, userName) always produce
// the same id, making a quiz idempotent per (board, ply, player, user).
func ComputeID(gnuID string, player board.Player, gameNumber, plyIndex int, userName string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s", gnuID, player, gameNumber, plyIndex, userName)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// MergeRecord resolves a collision between an existing and an incoming
// record sharing the same id: playCount takes the max of the two, and
// correctAnswers takes the smaller of (max of the two correctAnswers) and
// the resulting playCount, so the invariant correctAnswers <= playCount
// always holds after a merge.
func MergeRecord(existing, incoming Record) Record {
	merged := existing
	playCount := existing.Quiz.PlayCount
	if incoming.Quiz.PlayCount > playCount {
		playCount = incoming.Quiz.PlayCount
	}
	correct := existing.Quiz.CorrectAnswers
	if incoming.Quiz.CorrectAnswers > correct {
		correct = incoming.Quiz.CorrectAnswers
	}
	if correct > playCount {
		correct = playCount
	}
	merged.Quiz = Counters{PlayCount: playCount, CorrectAnswers: correct}
	return merged
}

// MergePositions unions two position sets keyed by id, resolving
// collisions with MergeRecord. Order is existing first, then incoming
// records not already present, both in their original relative order.
func MergePositions(existing, incoming []Record) []Record {
	byID := make(map[string]int, len(existing))
	out := make([]Record, len(existing))
	copy(out, existing)
	for i, r := range out {
		byID[r.ID] = i
	}
	for _, r := range incoming {
		if idx, ok := byID[r.ID]; ok {
			out[idx] = MergeRecord(out[idx], r)
			continue
		}
		byID[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// RecordResult finds the record with the given id and increments
// playCount by 1, and if wasCorrect increments correctAnswers by 1
// (clamped to the new playCount). Returns the updated record and true, or
// the zero Record and false if id was not found — a no-op per spec.
func RecordResult(records []Record, id string, wasCorrect bool) (Record, bool) {
	for i := range records {
		if records[i].ID != id {
			continue
		}
		records[i].Quiz.PlayCount++
		if wasCorrect {
			records[i].Quiz.CorrectAnswers++
		}
		if records[i].Quiz.CorrectAnswers > records[i].Quiz.PlayCount {
			records[i].Quiz.CorrectAnswers = records[i].Quiz.PlayCount
		}
		return records[i], true
	}
	return Record{}, false
}

// priorityScore implements spec.md §4.6's ranking formula: mistakes that
// are both severe and under-practiced score highest.
func priorityScore(r Record) float64 {
	c := float64(r.Quiz.CorrectAnswers)
	p := float64(r.Quiz.PlayCount)
	return r.Context.EquityDiff / (1 + 10*c*c + 2*p)
}

// NextQuiz returns the highest-priority record among records whose
// UserName matches userName exactly (when userName is non-empty), breaking
// ties by first occurrence. Returns false if the filtered set is empty.
func NextQuiz(records []Record, userName string) (Record, bool) {
	bestIdx := -1
	var bestScore float64
	for i, r := range records {
		if userName != "" && r.UserName != userName {
			continue
		}
		score := priorityScore(r)
		if bestIdx == -1 || score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	if bestIdx == -1 {
		return Record{}, false
	}
	return records[bestIdx], true
}

// Stats summarizes a user's quiz set for the statistics endpoint.
type Stats struct {
	TotalQuizzes   int      `json:"totalQuizzes"`
	TotalAttempts  int      `json:"totalAttempts"`
	TotalCorrect   int      `json:"totalCorrect"`
	WorstQuizzes   []Record `json:"worstQuizzes"`
}

// ComputeStats aggregates totals and picks up to three worst-performing
// records (lowest correctAnswers/playCount ratio among those that have been
// played at least once), ties broken by higher playCount first.
func ComputeStats(records []Record) Stats {
	st := Stats{TotalQuizzes: len(records)}
	var played []Record
	for _, r := range records {
		st.TotalAttempts += r.Quiz.PlayCount
		st.TotalCorrect += r.Quiz.CorrectAnswers
		if r.Quiz.PlayCount > 0 {
			played = append(played, r)
		}
	}
	sort.SliceStable(played, func(i, j int) bool {
		ri, rj := played[i], played[j]
		ratioI := float64(ri.Quiz.CorrectAnswers) / float64(ri.Quiz.PlayCount)
		ratioJ := float64(rj.Quiz.CorrectAnswers) / float64(rj.Quiz.PlayCount)
		if ratioI != ratioJ {
			return ratioI < ratioJ
		}
		return ri.Quiz.PlayCount > rj.Quiz.PlayCount
	})
	if len(played) > 3 {
		played = played[:3]
	}
	st.WorstQuizzes = played
	return st
}
