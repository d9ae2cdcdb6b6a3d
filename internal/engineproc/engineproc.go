// Package engineproc launches the external position-analysis engine as a
// one-shot child process per position and normalizes its output into ranked
// move candidates.
//
// The request/response-via-JSON-file-paths-in-env-vars contract is ported
// directly from the original analyze_position.py runner, which is itself
// invoked the same way by its launcher: GNUBG_INPUT_JSON/GNUBG_OUTPUT_JSON
// name the two file paths, never stdin/stdout framing. This package owns
// the launcher side of that exchange — the side the original Node process
// played — and is a one-shot invocation per call, matching spec.md's "the
// engine is not safe to run in parallel" and "must not assume a long-running
// session" design notes.
package engineproc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/board"
	"github.com/yourusername/bgquiz/internal/canon"
)

// Config is the engine's deployment-specific launch configuration.
type Config struct {
	ExecutablePath string // engine binary; empty means "unconfigured"
	ScriptFlag     string // flag that tells the engine to run the bundled analysis script, e.g. "-p"
	ScriptPath     string // path to the bundled analysis script
	WorkDir        string // directory for per-invocation temp request/response files
}

// Driver serializes invocations of the configured engine: a mutex admits
// one engine process at a time, whether the call comes from the crawl
// pipeline or from the HTTP surface.
type Driver struct {
	cfg Config
	log zerolog.Logger
	mu  sync.Mutex
}

func New(cfg Config, log zerolog.Logger) *Driver {
	return &Driver{cfg: cfg, log: log}
}

// wireRequest is the JSON shape written to the input file, matching the
// field names analyze_position.py's read_json call expects: "matchId" is
// actually the combined positionId:matchId gnuId string, a convention this
// driver preserves so the same script works unmodified.
type wireRequest struct {
	MatchID       string      `json:"matchId"`
	PositionID    *string     `json:"positionId,omitempty"`
	PositionIndex *int        `json:"positionIndex,omitempty"`
	Dice          *wireDice   `json:"dice,omitempty"`
}

type wireDice struct {
	Die1 int `json:"die1"`
	Die2 int `json:"die2"`
}

// wireResponse mirrors analyze_position.py's output shape.
type wireResponse struct {
	MatchID         *string      `json:"matchId"`
	PositionIndex   *int         `json:"positionIndex"`
	EngineAvailable bool         `json:"engineAvailable"`
	Moves           []wireMove   `json:"moves"`
	RawHint         *string      `json:"rawHint"`
	CurrentBoardID  *string      `json:"currentBoardId"`
	BoardASCII      *string      `json:"boardAscii"`
	Error           *string      `json:"error"`
}

type wireMove struct {
	Move   string   `json:"move"`
	Equity *float64 `json:"equity,omitempty"`
	MWC    *float64 `json:"mwc,omitempty"`
}

// Candidate is one normalized, ranked move after shorthand expansion.
type Candidate struct {
	MoveText string
	Parts    []canon.Token
	Equity   *float64
	MWC      *float64
}

// Response is the driver's normalized result for one position.
type Response struct {
	EngineAvailable bool
	Candidates      []Candidate
	Raw             string
}

// AnalyzePosition is the primary entry point: gnuID is the combined
// positionId:matchId string (spec.md §4.5 step 2-3 calls C3 with exactly
// this plus dice). dice may be nil to let the engine roll.
func (d *Driver) AnalyzePosition(ctx context.Context, gnuID string, dice *board.Dice) (Response, error) {
	return d.analyze(ctx, wireRequest{MatchID: gnuID}, dice)
}

// AnalyzeSplit is an alternate entry point matching spec.md §4.3's contract
// literally: given a separate positionId and matchId, it sends them as the
// wire request's separate positionId and matchId fields.
func (d *Driver) AnalyzeSplit(ctx context.Context, positionID, matchID string, dice *board.Dice) (Response, error) {
	return d.analyze(ctx, wireRequest{MatchID: matchID, PositionID: &positionID}, dice)
}

// Request is the full shape of spec.md §6's /analyzePositionFromMatch body:
// a matchId, an optional positionId or positionIndex into that match, and
// an optional dice override.
type Request struct {
	MatchID       string
	PositionID    *string
	PositionIndex *int
	Dice          *board.Dice
}

// AnalyzeRequest is the HTTP surface's entry point: it passes every field
// the wire protocol understands through unmodified, including
// positionIndex (used when the caller wants to re-derive a position from a
// stored match replay rather than supplying a positionId directly).
func (d *Driver) AnalyzeRequest(ctx context.Context, req Request) (Response, error) {
	return d.analyze(ctx, wireRequest{
		MatchID:       req.MatchID,
		PositionID:    req.PositionID,
		PositionIndex: req.PositionIndex,
	}, req.Dice)
}

func (d *Driver) analyze(ctx context.Context, req wireRequest, dice *board.Dice) (Response, error) {
	if d.cfg.ExecutablePath == "" {
		d.log.Warn().Msg("engine executable not configured, treating as unavailable")
		return Response{EngineAvailable: false}, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if dice != nil && dice.Set {
		req.Dice = &wireDice{Die1: dice.D1, Die2: dice.D2}
	}

	inPath, outPath, cleanup, err := d.tempPaths()
	if err != nil {
		return Response{EngineAvailable: false}, fmt.Errorf("engineproc: preparing temp files: %w", err)
	}
	defer cleanup()

	body, err := json.Marshal(req)
	if err != nil {
		return Response{EngineAvailable: false}, fmt.Errorf("engineproc: marshaling request: %w", err)
	}
	if err := os.WriteFile(inPath, body, 0o600); err != nil {
		return Response{EngineAvailable: false}, fmt.Errorf("engineproc: writing request file: %w", err)
	}

	args := []string{}
	if d.cfg.ScriptFlag != "" {
		args = append(args, d.cfg.ScriptFlag, d.cfg.ScriptPath)
	}
	cmd := exec.CommandContext(ctx, d.cfg.ExecutablePath, args...)
	cmd.Env = append(os.Environ(),
		"GNUBG_INPUT_JSON="+inPath,
		"GNUBG_OUTPUT_JSON="+outPath,
	)

	stdout, err := cmd.CombinedOutput()
	if err != nil {
		d.log.Warn().Err(err).Str("output", string(stdout)).Msg("engine process failed to launch or exited non-zero")
		return Response{EngineAvailable: false}, nil
	}

	outBody, err := os.ReadFile(outPath)
	if err != nil {
		d.log.Warn().Err(err).Msg("engine produced no response file, falling back to stdout parsing")
		return fallbackFromStdout(string(stdout)), nil
	}

	var wr wireResponse
	if err := json.Unmarshal(outBody, &wr); err != nil {
		d.log.Warn().Err(err).Msg("engine response file was not valid JSON, falling back to stdout parsing")
		return fallbackFromStdout(string(stdout)), nil
	}

	if !wr.EngineAvailable || len(wr.Moves) == 0 {
		if raw := wr.RawHint; raw != nil && *raw != "" {
			fb := fallbackFromStdout(*raw)
			if len(fb.Candidates) > 0 {
				fb.EngineAvailable = wr.EngineAvailable
				return fb, nil
			}
		}
		return Response{EngineAvailable: wr.EngineAvailable}, nil
	}

	return Response{
		EngineAvailable: true,
		Candidates:      normalize(wr.Moves),
		Raw:             derefString(wr.RawHint),
	}, nil
}

func (d *Driver) tempPaths() (inPath, outPath string, cleanup func(), err error) {
	dir := d.cfg.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "bgquiz-engine-*.json")
	if err != nil {
		return "", "", nil, err
	}
	inPath = f.Name()
	f.Close()
	outPath = inPath + ".out"

	cleanup = func() {
		os.Remove(inPath)
		os.Remove(outPath)
	}
	return inPath, outPath, cleanup, nil
}

// normalize expands shorthand in each candidate's move text and copies
// equity and mwc through as the engine reported them, keeping the engine's
// best-first order. An mwc value is not rescaled here: a percentage in the
// JSON response stays a percentage (only the stdout fallback converts a
// "MWC: N%" reading to 0..1).
func normalize(moves []wireMove) []Candidate {
	out := make([]Candidate, len(moves))
	for i, m := range moves {
		out[i] = Candidate{
			MoveText: m.Move,
			Parts:    canon.ExpandShorthand(m.Move),
			Equity:   m.Equity,
			MWC:      m.MWC,
		}
	}
	return out
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fallbackRankLineRE recognizes a rank-prefixed hint line carrying either an
// "Eq.:" or "MWC:" marker, with an optional Cubeful/Cubeless/Rollout prefix
// before the move text — grounded on analyze_position.py's
// parse_hint_output_to_candidates, generalized to the explicit-marker shape
// spec.md §4.3 describes for this driver's own stdout fallback (distinct
// from the trailing-bare-float shape the python script parses internally).
var fallbackRankLineRE = regexp.MustCompile(
	`(?i)^\s*(\d+)[.)]\s+(?:(?:Cubeful|Cubeless|Rollout)\s+)?(.+?)\s+(?:Eq\.?:\s*([+-]?\d+\.\d+)|MWC:\s*([\d.]+)%)`,
)

func fallbackFromStdout(text string) Response {
	var candidates []Candidate
	for _, line := range strings.Split(text, "\n") {
		m := fallbackRankLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		move := strings.TrimSpace(m[2])
		c := Candidate{MoveText: move, Parts: canon.ExpandShorthand(move)}
		if m[3] != "" {
			if eq, err := strconv.ParseFloat(m[3], 64); err == nil {
				c.Equity = &eq
			}
		} else if m[4] != "" {
			// Parse with a decimal exponent so "55.30" yields exactly 0.553
			// rather than the float error of dividing by 100.
			if mwc, err := strconv.ParseFloat(m[4]+"e-2", 64); err == nil {
				c.MWC = &mwc
			}
		}
		candidates = append(candidates, c)
	}
	return Response{EngineAvailable: len(candidates) > 0, Candidates: candidates, Raw: text}
}

// DefaultWorkDir returns a fixed "bgquiz-engine" subdirectory of the OS temp
// dir, shared by every process and created on first use, for engine
// request/response scratch files.
func DefaultWorkDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "bgquiz-engine")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
