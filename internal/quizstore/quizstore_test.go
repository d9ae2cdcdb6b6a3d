package quizstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/quizmodel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file:"+t.Name()+"?mode=memory&cache=shared", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadQuizzesCreatesDefault(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.LoadQuizzes(context.Background(), "  Alice ")
	if err != nil {
		t.Fatalf("LoadQuizzes: %v", err)
	}
	if len(doc.Positions) != 0 {
		t.Fatalf("expected no positions on first touch, got %d", len(doc.Positions))
	}
}

func TestSaveQuizzesMergeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	incoming := QuizzesDoc{
		EngineAvailable: true,
		Threshold:       0.08,
		Positions: []quizmodel.Record{
			{ID: "x", UserName: "alice", Quiz: quizmodel.Counters{PlayCount: 1}},
		},
	}

	first, err := s.SaveQuizzes(ctx, "alice", incoming)
	if err != nil {
		t.Fatalf("SaveQuizzes (first): %v", err)
	}
	if len(first.Positions) != 1 {
		t.Fatalf("got %d positions after first save, want 1", len(first.Positions))
	}

	second, err := s.SaveQuizzes(ctx, "alice", incoming)
	if err != nil {
		t.Fatalf("SaveQuizzes (second): %v", err)
	}
	if len(second.Positions) != 1 {
		t.Fatalf("got %d positions after idempotent save, want 1", len(second.Positions))
	}
}

func TestRecordResultAndGetQuizByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveQuizzes(ctx, "bob", QuizzesDoc{
		EngineAvailable: true,
		Threshold:       0.08,
		Positions:       []quizmodel.Record{{ID: "q1", UserName: "bob"}},
	})
	if err != nil {
		t.Fatalf("SaveQuizzes: %v", err)
	}

	updated, err := s.RecordResult(ctx, "bob", "q1", true)
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if updated == nil || updated.Quiz.PlayCount != 1 || updated.Quiz.CorrectAnswers != 1 {
		t.Fatalf("got %+v", updated)
	}

	rec, err := s.GetQuizByID(ctx, "bob", "q1")
	if err != nil {
		t.Fatalf("GetQuizByID: %v", err)
	}
	if rec == nil || rec.Quiz.PlayCount != 1 {
		t.Fatalf("got %+v", rec)
	}
}

func TestRecordResultMissingIDReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)
	updated, err := s.RecordResult(context.Background(), "carol", "missing", true)
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if updated != nil {
		t.Fatalf("expected nil, got %+v", updated)
	}
}

func TestAddAnalyzedMatchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddAnalyzedMatch(ctx, "dave", "match-1"); err != nil {
		t.Fatalf("AddAnalyzedMatch: %v", err)
	}
	if err := s.AddAnalyzedMatch(ctx, "dave", "match-1"); err != nil {
		t.Fatalf("AddAnalyzedMatch (again): %v", err)
	}

	matches, err := s.LoadAnalyzedMatches(ctx, "dave")
	if err != nil {
		t.Fatalf("LoadAnalyzedMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %v", len(matches), matches)
	}
}

func TestCrawlHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC()
	if err := s.RecordCrawlRun(ctx, CrawlRun{
		ID:           "job-1",
		UserName:     "erin",
		StartedAt:    started,
		MatchesTotal: 5,
	}); err != nil {
		t.Fatalf("RecordCrawlRun: %v", err)
	}

	finished := started.Add(time.Minute)
	if err := s.RecordCrawlRun(ctx, CrawlRun{
		ID:               "job-1",
		UserName:         "erin",
		StartedAt:        started,
		FinishedAt:       &finished,
		MatchesTotal:     5,
		MatchesProcessed: 5,
		QuizzesAdded:     2,
	}); err != nil {
		t.Fatalf("RecordCrawlRun (update): %v", err)
	}

	history, err := s.CrawlHistory(ctx, "erin", 10)
	if err != nil {
		t.Fatalf("CrawlHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d runs, want 1", len(history))
	}
	if history[0].QuizzesAdded != 2 {
		t.Fatalf("QuizzesAdded = %d, want 2", history[0].QuizzesAdded)
	}
}
