// Package pipeline implements spec.md §4.8's crawl-and-analyze pipeline: it
// authenticates against the source site, lists and downloads finished
// match transcripts, runs each through the parser and the per-ply
// analyzer, and checkpoints quiz records and the analyzed-match set after
// every match so a crash mid-crawl never re-analyzes finished work.
//
// This package is the glue between C8 (crawlclient), C1 (transcript), C4
// (analyzer), and C5 (quizstore); it has no teacher counterpart — the
// teacher engine has no crawl concept at all — and is built directly from
// spec.md §4.8's numbered steps, composed with the
// analyze_match.py original_source supplement (positionsSkipped tally)
// already reflected in internal/crawlqueue's ProgressPayload.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/analyzer"
	"github.com/yourusername/bgquiz/internal/crawlclient"
	"github.com/yourusername/bgquiz/internal/crawlqueue"
	"github.com/yourusername/bgquiz/internal/quizmodel"
	"github.com/yourusername/bgquiz/internal/quizstore"
	"github.com/yourusername/bgquiz/internal/transcript"
)

// Pipeline wires together the components a crawl-and-analyze run needs.
type Pipeline struct {
	store     *quizstore.Store
	crawler   *crawlclient.Client
	analyzer  *analyzer.Analyzer
	threshold float64
	log       zerolog.Logger
}

func New(store *quizstore.Store, crawler *crawlclient.Client, an *analyzer.Analyzer, threshold float64, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: store, crawler: crawler, analyzer: an, threshold: threshold, log: log}
}

// Runner adapts Run to crawlqueue.Runner's signature, so a Pipeline can
// drive the single-slot job queue directly.
func (p *Pipeline) Runner() crawlqueue.Runner {
	return func(ctx context.Context, job *crawlqueue.Job, emit func(crawlqueue.ProgressPayload)) (added, total, matchesTotal int, err error) {
		return p.Run(ctx, job.Payload, emit)
	}
}

// Run implements spec.md §4.8 steps 1-5 for one crawl job.
func (p *Pipeline) Run(ctx context.Context, payload crawlqueue.Payload, emit func(crawlqueue.ProgressPayload)) (added, total, matchesTotal int, err error) {
	user := payload.StorageKey

	quizzes, err := p.store.LoadQuizzes(ctx, user)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pipeline: loading quizzes: %w", err)
	}
	analyzed, err := p.store.LoadAnalyzedMatches(ctx, user)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pipeline: loading analyzed matches: %w", err)
	}
	seen := make(map[string]bool, len(analyzed))
	for _, id := range analyzed {
		seen[id] = true
	}

	emit(crawlqueue.ProgressPayload{Phase: "login_and_list"})
	session, err := p.crawler.Login(ctx, payload.Username, payload.Password)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pipeline: login: %w", err)
	}

	urls, err := session.ListFinished(ctx, payload.Username, payload.Days)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pipeline: listing finished matches: %w", err)
	}

	var pending []string
	for _, u := range urls {
		if !seen[crawlclient.MatchIDFromURL(u)] {
			pending = append(pending, u)
		}
	}

	emit(crawlqueue.ProgressPayload{Phase: "found_links", MatchesTotal: len(pending)})

	totalAdded := 0
	for i, matchURL := range pending {
		matchID := crawlclient.MatchIDFromURL(matchURL)

		text, err := session.Download(ctx, matchURL)
		if err != nil {
			p.log.Warn().Err(err).Str("match_id", matchID).Msg("pipeline: download failed, skipping match")
			emit(crawlqueue.ProgressPayload{Phase: "processing", MatchesTotal: len(pending), ProcessedMatches: i + 1, QuizzesAdded: totalAdded})
			continue
		}

		match, err := transcript.Parse(text)
		if err != nil {
			p.log.Warn().Err(err).Str("match_id", matchID).Msg("pipeline: unparseable transcript, skipping match")
			emit(crawlqueue.ProgressPayload{Phase: "processing", MatchesTotal: len(pending), ProcessedMatches: i + 1, QuizzesAdded: totalAdded})
			continue
		}

		records, skipped, err := p.analyzer.AnalyzeMatch(ctx, match, analyzer.Options{Threshold: p.threshold})
		if err != nil {
			p.log.Warn().Err(err).Str("match_id", matchID).Msg("pipeline: analysis failed, skipping match")
			emit(crawlqueue.ProgressPayload{Phase: "processing", MatchesTotal: len(pending), ProcessedMatches: i + 1, QuizzesAdded: totalAdded, PositionsSkipped: skipped})
			continue
		}

		var lastPositionID string
		for _, rec := range records {
			saved, err := p.store.SaveQuizzes(ctx, user, quizstore.QuizzesDoc{
				EngineAvailable: quizzes.EngineAvailable,
				Threshold:       p.threshold,
				Positions:       []quizmodel.Record{rec},
			})
			if err != nil {
				return totalAdded, totalAdded, len(pending), fmt.Errorf("pipeline: saving quiz %s: %w", rec.ID, err)
			}
			quizzes = saved
			totalAdded++
			lastPositionID = recordPositionID(rec.GnuID)
			emit(crawlqueue.ProgressPayload{
				Phase:            "processing",
				MatchesTotal:     len(pending),
				ProcessedMatches: i,
				QuizzesAdded:     totalAdded,
				PositionsSkipped: skipped,
				LastPositionID:   lastPositionID,
			})
		}

		if err := p.store.AddAnalyzedMatch(ctx, user, matchID); err != nil {
			return totalAdded, totalAdded, len(pending), fmt.Errorf("pipeline: recording analyzed match %s: %w", matchID, err)
		}

		emit(crawlqueue.ProgressPayload{
			Phase:            "processing",
			MatchesTotal:     len(pending),
			ProcessedMatches: i + 1,
			QuizzesAdded:     totalAdded,
			PositionsSkipped: skipped,
			LastPositionID:   lastPositionID,
		})
	}

	emit(crawlqueue.ProgressPayload{Phase: "done", MatchesTotal: len(pending), ProcessedMatches: len(pending), QuizzesAdded: totalAdded})

	return totalAdded, len(quizzes.Positions), len(pending), nil
}

// RunAndRecord wraps Run with a crawl_runs history entry (the
// SPEC_FULL.md §3 supplement), so the queue's runner always leaves an
// auditable row behind regardless of success or failure.
func (p *Pipeline) RunAndRecord(ctx context.Context, runID string, payload crawlqueue.Payload, emit func(crawlqueue.ProgressPayload)) (added, total, matchesTotal int, err error) {
	started := time.Now().UTC()
	run := quizstore.CrawlRun{ID: runID, UserName: payload.StorageKey, StartedAt: started}

	added, total, matchesTotal, err = p.Run(ctx, payload, func(ev crawlqueue.ProgressPayload) {
		run.MatchesTotal = ev.MatchesTotal
		run.MatchesProcessed = ev.ProcessedMatches
		run.QuizzesAdded = ev.QuizzesAdded
		emit(ev)
	})

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		msg := err.Error()
		run.ErrorText = &msg
	} else {
		run.MatchesTotal = matchesTotal
		run.QuizzesAdded = added
	}
	if recErr := p.store.RecordCrawlRun(ctx, run); recErr != nil {
		p.log.Error().Err(recErr).Str("run_id", runID).Msg("pipeline: failed to record crawl history")
	}

	return added, total, matchesTotal, err
}

// recordPositionID extracts the position-id half of a "positionId:matchId"
// gnuId string, for the progress event's LastPositionID field.
func recordPositionID(gnuID string) string {
	if idx := strings.Index(gnuID, ":"); idx != -1 {
		return gnuID[:idx]
	}
	return gnuID
}
