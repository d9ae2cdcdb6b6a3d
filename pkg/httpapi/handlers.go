// Package httpapi implements spec.md §6's HTTP surface (C7): per-user Basic
// auth, the quiz next/by-id/update/stats endpoints, and the
// crawl-and-analyze SSE stream. It is new relative to the teacher — the
// teacher's pkg/api serves a completely different, in-process engine API —
// but follows its shape for the ambient pieces: plain net/http handlers
// registered on a ServeMux, a writeJSON/writeError pair, and an SSE
// handler built the same way as the teacher's pkg/api/sse.go (manual
// "event:"/"data:" framing plus http.Flusher).
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/board"
	"github.com/yourusername/bgquiz/internal/crawlqueue"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/quizstore"
)

// Config carries the handler-level defaults a deployment sets once.
type Config struct {
	DefaultThreshold float64
	DefaultDays      int
	Version          string
}

// Handlers holds every collaborator the HTTP surface calls into.
type Handlers struct {
	store    *quizstore.Store
	driver   *engineproc.Driver
	queue    *crawlqueue.Queue
	cfg      Config
	log      zerolog.Logger
	validate *validator.Validate
}

func NewHandlers(store *quizstore.Store, driver *engineproc.Driver, queue *crawlqueue.Queue, cfg Config, log zerolog.Logger) *Handlers {
	return &Handlers{
		store:    store,
		driver:   driver,
		queue:    queue,
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Health implements GET /health. Unauthenticated per spec.md §6.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// AnalyzePositionFromMatch implements POST /analyzePositionFromMatch.
// Unauthenticated per spec.md §6 — it is a thin pass-through to the engine
// driver and carries no per-user state.
func (h *Handlers) AnalyzePositionFromMatch(w http.ResponseWriter, r *http.Request) {
	var req AnalyzePositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "bad_request")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}

	engReq := engineproc.Request{MatchID: req.MatchID, PositionID: req.PositionID, PositionIndex: req.PositionIndex}
	if req.Dice != nil {
		engReq.Dice = diceFromRequest(req.Dice)
	}

	resp, err := h.driver.AnalyzeRequest(r.Context(), engReq)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: engine invocation failed")
		writeError(w, http.StatusInternalServerError, "engine invocation failed", "storage_failure")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetQuiz implements GET /getQuiz?player=<name>.
func (h *Handlers) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	player := r.URL.Query().Get("player")

	rec, err := h.store.NextQuiz(r.Context(), user.Name, player)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: next quiz lookup failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetQuizByID implements GET /getQuiz/:id.
func (h *Handlers) GetQuizByID(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	id := r.PathValue("id")

	rec, err := h.store.GetQuizByID(r.Context(), user.Name, id)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: quiz lookup failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "quiz not found", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateQuiz implements POST /updateQuiz.
func (h *Handlers) UpdateQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	var req UpdateQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "bad_request")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}

	rec, err := h.store.RecordResult(r.Context(), user.Name, req.ID, req.WasCorrect)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: record result failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "quiz not found", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetPlayers implements GET /getPlayers.
func (h *Handlers) GetPlayers(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	names, err := h.store.Players(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: listing players failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// GetStatistics implements GET /getStatistics.
func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	stats, err := h.store.Stats(r.Context(), user.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: computing statistics failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	worst := make([]string, len(stats.WorstQuizzes))
	for i, q := range stats.WorstQuizzes {
		worst[i] = q.ID
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{
		TotalQuizzes:  stats.TotalQuizzes,
		TotalAttempts: stats.TotalAttempts,
		TotalCorrect:  stats.TotalCorrect,
		WorstQuizzes:  worst,
	})
}

// AddLastMatchesAndSave implements POST /addLastMatchesAndSave: it enqueues
// a crawl job on the shared single-slot queue and returns immediately with
// the job's id and current ahead-count, per spec.md §4.7/§6.
func (h *Handlers) AddLastMatchesAndSave(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}

	var req AddLastMatchesRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body", "bad_request")
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}

	days := req.Days
	if days == 0 {
		days = h.cfg.DefaultDays
	}
	sourceUserID := req.UserID
	if sourceUserID == "" {
		sourceUserID = user.Name
	}

	job, ahead := h.queue.Enqueue(crawlqueue.Payload{
		StorageKey: quizstore.NormalizeUser(user.Name),
		Username:   sourceUserID,
		Password:   user.Password,
		Days:       days,
	})

	writeJSON(w, http.StatusOK, AddLastMatchesResponse{JobID: job.ID, AheadCount: ahead})
}

// GetCrawlHistory implements the SPEC_FULL.md §6 addition GET
// /getCrawlHistory.
func (h *Handlers) GetCrawlHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.store.CrawlHistory(r.Context(), user.Name, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("httpapi: crawl history lookup failed")
		writeError(w, http.StatusInternalServerError, "storage failure", "storage_failure")
		return
	}
	entries := make([]CrawlHistoryEntry, len(runs))
	for i, run := range runs {
		entries[i] = crawlHistoryEntry(run)
	}
	writeJSON(w, http.StatusOK, entries)
}

func crawlHistoryEntry(run quizstore.CrawlRun) CrawlHistoryEntry {
	e := CrawlHistoryEntry{
		ID:               run.ID,
		StartedAt:        run.StartedAt.Format(time.RFC3339),
		MatchesTotal:     run.MatchesTotal,
		MatchesProcessed: run.MatchesProcessed,
		QuizzesAdded:     run.QuizzesAdded,
		Error:            run.ErrorText,
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		e.FinishedAt = &s
	}
	return e
}

func diceFromRequest(d *DiceRequest) *board.Dice {
	return &board.Dice{D1: d.D1, D2: d.D2, Set: true}
}
