// Package quizstore is the per-user persistent store: two JSON documents
// per normalized user (the quiz set and the analyzed-match set) plus a
// crawl-run history table, all guarded by SQLite transactions.
//
// Grounded on the teacher's conorfennell-knolhash counterpart
// (internal/storage/database.go, schema.go): modernc.org/sqlite opened
// with database/sql, a bundled schema string executed on Open, and plain
// methods wrapping hand-written SQL — generalized from knolhash's
// relational "cards"/"sources" tables to this system's document-per-user
// shape, since the quiz set's internal structure (positions keyed by id,
// merge-on-write) is exactly the kind of semi-structured blob a JSON
// column fits better than a normalized table.
package quizstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/quizmodel"
)

// QuizzesDoc is the "quizzes" document from spec.md §4.6.
type QuizzesDoc struct {
	EngineAvailable bool                `json:"engineAvailable"`
	Threshold       float64             `json:"threshold"`
	Positions       []quizmodel.Record  `json:"positions"`
}

// AnalyzedDoc is the "analyzedMatches" document from spec.md §4.6.
type AnalyzedDoc struct {
	Matches []string `json:"matches"`
}

// CrawlRun is one row of crawl history.
type CrawlRun struct {
	ID               string
	UserName         string
	StartedAt        time.Time
	FinishedAt       *time.Time
	MatchesTotal     int
	MatchesProcessed int
	QuizzesAdded     int
	ErrorText        *string
}

// Store wraps the SQLite connection backing every per-user document.
type Store struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open opens (creating if absent) the SQLite database at dsn, applies the
// schema, and turns on WAL journaling and foreign-key enforcement — the
// concrete mechanism behind spec.md §6's "WAL-style journaling required;
// foreign-key enforcement enabled for any auxiliary tables."
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("quizstore: opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("quizstore: connecting: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("quizstore: %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("quizstore: applying schema: %w", err)
	}
	return &Store{conn: conn, log: log}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// NormalizeUser trims and lowercases a username to the storage key spec.md
// §3 and §6 require.
func NormalizeUser(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var defaultQuizzes = QuizzesDoc{EngineAvailable: true, Threshold: 0.08}

// ensureRow creates a default row for a normalized user if one does not
// already exist, inside tx, so callers can always read-modify-write
// without a separate existence check.
func ensureRow(ctx context.Context, tx *sql.Tx, user string) error {
	qJSON, err := json.Marshal(defaultQuizzes)
	if err != nil {
		return err
	}
	aJSON, err := json.Marshal(AnalyzedDoc{})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_documents (user_name, quizzes_json, analyzed_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_name) DO NOTHING
	`, user, string(qJSON), string(aJSON), time.Now().UTC())
	return err
}

// LoadQuizzes returns the user's quiz document, creating a default one on
// first touch.
func (s *Store) LoadQuizzes(ctx context.Context, userName string) (QuizzesDoc, error) {
	user := NormalizeUser(userName)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := ensureRow(ctx, tx, user); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: ensuring row: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT quizzes_json FROM user_documents WHERE user_name = ?`, user).Scan(&raw); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: loading quizzes: %w", err)
	}
	var doc QuizzesDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: decoding quizzes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: commit: %w", err)
	}
	return doc, nil
}

// SaveQuizzes performs spec.md §4.6's read-modify-write merge inside a
// single transaction: existing.positions ∪ incoming.positions keyed by id.
// incoming's Threshold and EngineAvailable always replace the stored
// values; there is no "unset" state, so a zero Threshold or a false
// EngineAvailable in incoming overwrites what was stored.
func (s *Store) SaveQuizzes(ctx context.Context, userName string, incoming QuizzesDoc) (QuizzesDoc, error) {
	user := NormalizeUser(userName)
	tx, err := s.conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := ensureRow(ctx, tx, user); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: ensuring row: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT quizzes_json FROM user_documents WHERE user_name = ?`, user).Scan(&raw); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: loading quizzes: %w", err)
	}
	var existing QuizzesDoc
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: decoding existing quizzes: %w", err)
	}

	merged := QuizzesDoc{
		EngineAvailable: incoming.EngineAvailable,
		Threshold:       incoming.Threshold,
		Positions:       quizmodel.MergePositions(existing.Positions, incoming.Positions),
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: encoding merged quizzes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_documents SET quizzes_json = ?, updated_at = ? WHERE user_name = ?
	`, string(out), time.Now().UTC(), user); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: saving quizzes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return QuizzesDoc{}, fmt.Errorf("quizstore: commit: %w", err)
	}
	return merged, nil
}

// RecordResult finds the quiz with id and increments its counters, per
// spec.md §4.6. Returns nil, nil if id was not found (a no-op, not an
// error).
func (s *Store) RecordResult(ctx context.Context, userName, id string, wasCorrect bool) (*quizmodel.Record, error) {
	user := NormalizeUser(userName)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := ensureRow(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("quizstore: ensuring row: %w", err)
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT quizzes_json FROM user_documents WHERE user_name = ?`, user).Scan(&raw); err != nil {
		return nil, fmt.Errorf("quizstore: loading quizzes: %w", err)
	}
	var doc QuizzesDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("quizstore: decoding quizzes: %w", err)
	}

	updated, found := quizmodel.RecordResult(doc.Positions, id, wasCorrect)
	if !found {
		return nil, nil
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("quizstore: encoding quizzes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_documents SET quizzes_json = ?, updated_at = ? WHERE user_name = ?
	`, string(out), time.Now().UTC(), user); err != nil {
		return nil, fmt.Errorf("quizstore: saving quizzes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("quizstore: commit: %w", err)
	}
	return &updated, nil
}

// GetQuizByID returns the quiz record with the given id for the user, or
// nil, nil if not found.
func (s *Store) GetQuizByID(ctx context.Context, userName, id string) (*quizmodel.Record, error) {
	doc, err := s.LoadQuizzes(ctx, userName)
	if err != nil {
		return nil, err
	}
	for i := range doc.Positions {
		if doc.Positions[i].ID == id {
			return &doc.Positions[i], nil
		}
	}
	return nil, nil
}

// NextQuiz returns the highest-priority quiz for the user, optionally
// filtered to an exact player name within the user's own positions.
func (s *Store) NextQuiz(ctx context.Context, userName, player string) (*quizmodel.Record, error) {
	doc, err := s.LoadQuizzes(ctx, userName)
	if err != nil {
		return nil, err
	}
	rec, ok := quizmodel.NextQuiz(doc.Positions, player)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Stats returns the user's aggregate quiz statistics.
func (s *Store) Stats(ctx context.Context, userName string) (quizmodel.Stats, error) {
	doc, err := s.LoadQuizzes(ctx, userName)
	if err != nil {
		return quizmodel.Stats{}, err
	}
	return quizmodel.ComputeStats(doc.Positions), nil
}

// LoadAnalyzedMatches returns the set of match ids already processed for
// the user.
func (s *Store) LoadAnalyzedMatches(ctx context.Context, userName string) ([]string, error) {
	user := NormalizeUser(userName)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := ensureRow(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("quizstore: ensuring row: %w", err)
	}
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT analyzed_json FROM user_documents WHERE user_name = ?`, user).Scan(&raw); err != nil {
		return nil, fmt.Errorf("quizstore: loading analyzed matches: %w", err)
	}
	var doc AnalyzedDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("quizstore: decoding analyzed matches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("quizstore: commit: %w", err)
	}
	return doc.Matches, nil
}

// AddAnalyzedMatch unions matchID into the user's analyzed-match set and
// persists immediately, per spec.md §4.8's fine-grained checkpointing so a
// crash mid-crawl does not re-analyze finished matches.
func (s *Store) AddAnalyzedMatch(ctx context.Context, userName, matchID string) error {
	user := NormalizeUser(userName)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("quizstore: begin: %w", err)
	}
	defer tx.Rollback()

	if err := ensureRow(ctx, tx, user); err != nil {
		return fmt.Errorf("quizstore: ensuring row: %w", err)
	}
	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT analyzed_json FROM user_documents WHERE user_name = ?`, user).Scan(&raw); err != nil {
		return fmt.Errorf("quizstore: loading analyzed matches: %w", err)
	}
	var doc AnalyzedDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("quizstore: decoding analyzed matches: %w", err)
	}

	found := false
	for _, m := range doc.Matches {
		if m == matchID {
			found = true
			break
		}
	}
	if !found {
		doc.Matches = append(doc.Matches, matchID)
		sort.Strings(doc.Matches)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("quizstore: encoding analyzed matches: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_documents SET analyzed_json = ?, updated_at = ? WHERE user_name = ?
	`, string(out), time.Now().UTC(), user); err != nil {
		return fmt.Errorf("quizstore: saving analyzed matches: %w", err)
	}
	return tx.Commit()
}

// Players returns the sorted set of player names that have quiz positions
// recorded, as they appear in the records (not normalized), matching
// spec.md §6's /getPlayers response — distinct
// player names inside quiz records, not storage keys, since a storage key
// is the crawl account while `context.player`/`user.name` identify whose
// move a quiz is about.
func (s *Store) Players(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT quizzes_json FROM user_documents`)
	if err != nil {
		return nil, fmt.Errorf("quizstore: listing players: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("quizstore: scanning quizzes: %w", err)
		}
		var doc QuizzesDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		for _, p := range doc.Positions {
			if p.UserName != "" {
				seen[p.UserName] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// RecordCrawlRun inserts or updates a crawl_runs row for run.ID.
func (s *Store) RecordCrawlRun(ctx context.Context, run CrawlRun) error {
	user := NormalizeUser(run.UserName)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO user_documents (user_name, quizzes_json, analyzed_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_name) DO NOTHING
	`, user, mustJSON(defaultQuizzes), mustJSON(AnalyzedDoc{}), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("quizstore: ensuring row for crawl run: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, user_name, started_at, finished_at, matches_total, matches_processed, quizzes_added, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			matches_total = excluded.matches_total,
			matches_processed = excluded.matches_processed,
			quizzes_added = excluded.quizzes_added,
			error_text = excluded.error_text
	`, run.ID, user, run.StartedAt, run.FinishedAt, run.MatchesTotal, run.MatchesProcessed, run.QuizzesAdded, run.ErrorText)
	if err != nil {
		return fmt.Errorf("quizstore: recording crawl run: %w", err)
	}
	return nil
}

// CrawlHistory returns the user's most recent crawl runs, newest first,
// backing the /getCrawlHistory endpoint added in SPEC_FULL.md §6.
func (s *Store) CrawlHistory(ctx context.Context, userName string, limit int) ([]CrawlRun, error) {
	user := NormalizeUser(userName)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_name, started_at, finished_at, matches_total, matches_processed, quizzes_added, error_text
		FROM crawl_runs WHERE user_name = ? ORDER BY started_at DESC LIMIT ?
	`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("quizstore: loading crawl history: %w", err)
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var r CrawlRun
		if err := rows.Scan(&r.ID, &r.UserName, &r.StartedAt, &r.FinishedAt, &r.MatchesTotal, &r.MatchesProcessed, &r.QuizzesAdded, &r.ErrorText); err != nil {
			return nil, fmt.Errorf("quizstore: scanning crawl run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
