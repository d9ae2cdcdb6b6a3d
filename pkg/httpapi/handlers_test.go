package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/board"
	"github.com/yourusername/bgquiz/internal/crawlqueue"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/quizmodel"
	"github.com/yourusername/bgquiz/internal/quizstore"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	store, err := quizstore.Open("file:"+t.Name()+"?mode=memory&cache=shared", zerolog.Nop())
	if err != nil {
		t.Fatalf("quizstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	driver := engineproc.New(engineproc.Config{}, zerolog.Nop())
	queue := crawlqueue.NewQueue(func(ctx context.Context, job *crawlqueue.Job, emit func(crawlqueue.ProgressPayload)) (int, int, int, error) {
		return 0, 0, 0, nil
	}, zerolog.Nop())

	return NewHandlers(store, driver, queue, Config{DefaultThreshold: 0.08, DefaultDays: 7}, zerolog.Nop())
}

func withAuth(r *http.Request, user, pass string) *http.Request {
	r.SetBasicAuth(user, pass)
	return r
}

func TestHealthHandler(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
}

func TestGetQuizWithoutAuthIsUnauthorized(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest("GET", "/getQuiz", nil)
	w := httptest.NewRecorder()
	h.GetQuiz(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestGetQuizNoneAvailableReturnsNoContent(t *testing.T) {
	h := newTestHandlers(t)

	req := withAuth(httptest.NewRequest("GET", "/getQuiz", nil), "alice", "pw")
	req = req.WithContext(basicAuthContext(req))
	w := httptest.NewRecorder()
	h.GetQuiz(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// basicAuthContext replicates what the basicAuth middleware would have put
// in the context, for handler tests that call handlers directly instead of
// going through the full mux.
func basicAuthContext(r *http.Request) context.Context {
	user, pass, _ := r.BasicAuth()
	return context.WithValue(r.Context(), userNameKey, authUser{Name: user, Password: pass})
}

func TestUpdateQuizRoundTrip(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	rec := quizmodel.Record{
		ID:    quizmodel.ComputeID("abc:def", board.P1, 1, 0, "alice"),
		Type:  "checker",
		GnuID: "abc:def",
		Best:  quizmodel.MoveEquity{Move: "24/18", Equity: 0.5},
		User:  quizmodel.UserMove{Move: "24/18 13/7", Equity: 0.1, Rank: 2},
		Context: quizmodel.Context{
			GameNumber: 1,
			PlyIndex:   0,
			Player:     board.P1,
			EquityDiff: 0.4,
		},
		UserName: "alice",
	}
	if _, err := h.store.SaveQuizzes(ctx, "alice", quizstore.QuizzesDoc{Positions: []quizmodel.Record{rec}}); err != nil {
		t.Fatalf("SaveQuizzes: %v", err)
	}

	body, _ := json.Marshal(UpdateQuizRequest{ID: rec.ID, WasCorrect: true})
	req := withAuth(httptest.NewRequest("POST", "/updateQuiz", bytes.NewReader(body)), "alice", "pw")
	req = req.WithContext(basicAuthContext(req))
	w := httptest.NewRecorder()
	h.UpdateQuiz(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var got quizmodel.Record
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Quiz.PlayCount != 1 || got.Quiz.CorrectAnswers != 1 {
		t.Errorf("Quiz counters = %+v, want playCount=1 correctAnswers=1", got.Quiz)
	}
}

func TestUpdateQuizUnknownIDReturnsNotFound(t *testing.T) {
	h := newTestHandlers(t)

	body, _ := json.Marshal(UpdateQuizRequest{ID: "nonexistent", WasCorrect: true})
	req := withAuth(httptest.NewRequest("POST", "/updateQuiz", bytes.NewReader(body)), "alice", "pw")
	req = req.WithContext(basicAuthContext(req))
	w := httptest.NewRecorder()
	h.UpdateQuiz(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAnalyzePositionFromMatchRejectsMissingMatchID(t *testing.T) {
	h := newTestHandlers(t)

	body, _ := json.Marshal(AnalyzePositionRequest{})
	req := httptest.NewRequest("POST", "/analyzePositionFromMatch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.AnalyzePositionFromMatch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAnalyzePositionFromMatchWithoutEngineReportsUnavailable(t *testing.T) {
	h := newTestHandlers(t)

	body, _ := json.Marshal(AnalyzePositionRequest{MatchID: "abc:def"})
	req := httptest.NewRequest("POST", "/analyzePositionFromMatch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.AnalyzePositionFromMatch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp engineproc.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EngineAvailable {
		t.Error("EngineAvailable = true, want false when no engine executable is configured")
	}
}

func TestAddLastMatchesAndSaveEnqueuesJob(t *testing.T) {
	h := newTestHandlers(t)

	req := withAuth(httptest.NewRequest("POST", "/addLastMatchesAndSave", nil), "alice", "pw")
	req = req.WithContext(basicAuthContext(req))
	w := httptest.NewRecorder()
	h.AddLastMatchesAndSave(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp AddLastMatchesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.JobID == "" {
		t.Error("JobID is empty")
	}
}

func TestGetStatisticsEmptyStore(t *testing.T) {
	h := newTestHandlers(t)

	req := withAuth(httptest.NewRequest("GET", "/getStatistics", nil), "alice", "pw")
	req = req.WithContext(basicAuthContext(req))
	w := httptest.NewRecorder()
	h.GetStatistics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp StatisticsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalQuizzes != 0 {
		t.Errorf("TotalQuizzes = %d, want 0", resp.TotalQuizzes)
	}
}
