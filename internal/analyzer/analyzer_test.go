package analyzer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/board"
	"github.com/yourusername/bgquiz/internal/canon"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/transcript"
)

func eq(v float64) *float64 { return &v }

// scriptedDriver returns the same response to every call, enough to drive
// one ply through AnalyzeMatch deterministically.
type scriptedDriver struct {
	resp engineproc.Response
	err  error
}

func (d scriptedDriver) AnalyzePosition(ctx context.Context, gnuID string, dice *board.Dice) (engineproc.Response, error) {
	return d.resp, d.err
}

func oneMoveMatch(player1Move string) *transcript.Match {
	name1, name2 := "alice", "bob"
	return &transcript.Match{
		Games: []*transcript.Game{
			{
				Number:  1,
				Player1: &name1,
				Player2: &name2,
				Plies: []transcript.Ply{
					{
						Number: 1,
						P1: transcript.HalfPly{
							Kind:  transcript.KindMove,
							Dice:  [2]int{3, 1},
							Parts: []transcript.Part{{From: 8, To: 5}, {From: 6, To: 5}},
						},
						P2: transcript.HalfPly{Kind: transcript.KindNoMove},
					},
				},
			},
		},
	}
}

func TestAnalyzeMatchFlagsMistakeAboveThreshold(t *testing.T) {
	driver := scriptedDriver{resp: engineproc.Response{
		EngineAvailable: true,
		Candidates: []engineproc.Candidate{
			{MoveText: "13/10 13/9", Parts: canon.ExpandShorthand("13/10 13/9"), Equity: eq(0.30)},
			{MoveText: "8/5 6/5", Parts: canon.ExpandShorthand("8/5 6/5"), Equity: eq(0.05)},
		},
	}}
	a := New(driver, zerolog.Nop())

	records, skipped, err := a.AnalyzeMatch(context.Background(), oneMoveMatch("8/5 6/5"), Options{Threshold: 0.08})
	if err != nil {
		t.Fatalf("AnalyzeMatch: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.UserName != "alice" {
		t.Errorf("UserName = %q, want alice", rec.UserName)
	}
	if rec.User.Rank != 1 {
		t.Errorf("User.Rank = %d, want 1", rec.User.Rank)
	}
	want := 0.30 - 0.05
	if diff := rec.Context.EquityDiff - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EquityDiff = %v, want %v", rec.Context.EquityDiff, want)
	}
}

func TestAnalyzeMatchSkipsBelowThreshold(t *testing.T) {
	driver := scriptedDriver{resp: engineproc.Response{
		EngineAvailable: true,
		Candidates: []engineproc.Candidate{
			{MoveText: "8/5 6/5", Parts: canon.ExpandShorthand("8/5 6/5"), Equity: eq(0.10)},
			{MoveText: "13/10 13/9", Parts: canon.ExpandShorthand("13/10 13/9"), Equity: eq(0.08)},
		},
	}}
	a := New(driver, zerolog.Nop())

	records, _, err := a.AnalyzeMatch(context.Background(), oneMoveMatch("8/5 6/5"), Options{Threshold: 0.08})
	if err != nil {
		t.Fatalf("AnalyzeMatch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0 for a below-threshold equity loss", len(records))
	}
}

func TestAnalyzeMatchSkipsWhenEngineUnavailable(t *testing.T) {
	driver := scriptedDriver{resp: engineproc.Response{EngineAvailable: false}}
	a := New(driver, zerolog.Nop())

	records, skipped, err := a.AnalyzeMatch(context.Background(), oneMoveMatch("8/5 6/5"), Options{Threshold: 0.08})
	if err != nil {
		t.Fatalf("AnalyzeMatch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
}

func TestAnalyzeMatchRestrictsToUserName(t *testing.T) {
	driver := scriptedDriver{resp: engineproc.Response{
		EngineAvailable: true,
		Candidates: []engineproc.Candidate{
			{MoveText: "13/10 13/9", Parts: canon.ExpandShorthand("13/10 13/9"), Equity: eq(0.30)},
			{MoveText: "8/5 6/5", Parts: canon.ExpandShorthand("8/5 6/5"), Equity: eq(0.05)},
		},
	}}
	a := New(driver, zerolog.Nop())

	records, _, err := a.AnalyzeMatch(context.Background(), oneMoveMatch("8/5 6/5"), Options{Threshold: 0.08, UserName: "bob"})
	if err != nil {
		t.Fatalf("AnalyzeMatch: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0 when restricted to a player who didn't play this ply", len(records))
	}
}
