package httpapi

// HealthResponse backs GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AnalyzePositionRequest backs POST /analyzePositionFromMatch, per spec.md
// §6: matchId is required, everything else narrows which position within
// that match to analyze.
type AnalyzePositionRequest struct {
	MatchID       string       `json:"matchId" validate:"required"`
	PositionID    *string      `json:"positionId,omitempty"`
	PositionIndex *int         `json:"positionIndex,omitempty"`
	Dice          *DiceRequest `json:"dice,omitempty"`
}

// DiceRequest overrides the dice used for one engine invocation.
type DiceRequest struct {
	D1 int `json:"d1" validate:"required,min=1,max=6"`
	D2 int `json:"d2" validate:"required,min=1,max=6"`
}

// UpdateQuizRequest backs POST /updateQuiz.
type UpdateQuizRequest struct {
	ID         string `json:"id" validate:"required"`
	WasCorrect bool   `json:"wasCorrect"`
}

// AddLastMatchesRequest backs POST /addLastMatchesAndSave.
type AddLastMatchesRequest struct {
	Days   int    `json:"days,omitempty" validate:"omitempty,min=1,max=365"`
	UserID string `json:"userId,omitempty"`
}

// AddLastMatchesResponse is the job handle returned from enqueueing a crawl.
type AddLastMatchesResponse struct {
	JobID      string `json:"jobId"`
	AheadCount int    `json:"aheadCount"`
}

// StatisticsResponse backs GET /getStatistics.
type StatisticsResponse struct {
	TotalQuizzes  int      `json:"totalQuizzes"`
	TotalAttempts int      `json:"totalAttempts"`
	TotalCorrect  int      `json:"totalCorrect"`
	WorstQuizzes  []string `json:"worstQuizzes"`
}

// ErrorResponse is the uniform error body every handler returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CrawlHistoryEntry backs GET /getCrawlHistory, the SPEC_FULL.md §6
// addition surfacing quizstore.CrawlRun rows with humanized timestamps
// computed at the CLI layer (internal/ctl), not here — the HTTP response
// stays machine-readable (RFC3339 timestamps), and cmd/bgquizctl is the
// one place go-humanize turns them into "3h ago" text for a human reader.
type CrawlHistoryEntry struct {
	ID               string  `json:"id"`
	StartedAt        string  `json:"startedAt"`
	FinishedAt       *string `json:"finishedAt,omitempty"`
	MatchesTotal     int     `json:"matchesTotal"`
	MatchesProcessed int     `json:"matchesProcessed"`
	QuizzesAdded     int     `json:"quizzesAdded"`
	Error            *string `json:"error,omitempty"`
}
