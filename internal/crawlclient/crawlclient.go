// Package crawlclient authenticates against the source site and lists and
// downloads finished match transcripts (spec.md §4.9, C8). It is the one
// piece of this repo that talks to a system outside our control, so it is
// kept to a tight net/http surface: form login, cookie-jar session reuse,
// and a single regexp scraping `/bg/export/...` hrefs out of a listing
// page, mirroring the "tight pattern for one known shape" the teacher uses
// in pkg/match/mat.go rather than a full HTML parser for a page we do not
// own.
package crawlclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config points the client at the source site. BaseURL, LoginPath, and
// ListPath are configurable because the only fixed contract is the
// welcome-string success check and the /bg/export/ href shape.
type Config struct {
	BaseURL      string
	LoginPath    string
	ListPath     string
	WelcomeText  string
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.LoginPath == "" {
		c.LoginPath = "/login.php"
	}
	if c.ListPath == "" {
		c.ListPath = "/bg/matches.php"
	}
	if c.WelcomeText == "" {
		c.WelcomeText = "Welcome,"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// exportHrefRE matches the /bg/export/... links a listing page holds, one
// per finished match, same style as pkg/match/mat.go's single-purpose
// anchors: a pattern tight enough for the one shape it targets, not a
// general HTML grammar.
var exportHrefRE = regexp.MustCompile(`href="(/bg/export/[^"]+)"`)

// Session wraps the cookie jar a successful login produces; later calls to
// ListFinished and Download present it to stay authenticated.
type Session struct {
	client *http.Client
	cfg    Config
}

// Client is a crawlclient instance bound to one source-site configuration.
type Client struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	return &Client{cfg: cfg.withDefaults(), log: log}
}

// Login authenticates with a form POST, carrying cookies in a per-session
// jar, and confirms success by looking for the configured welcome string in
// the response body (spec.md §4.9: "success is detected by a welcome
// string in the landing page").
func (c *Client) Login(ctx context.Context, user, pass string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: new cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: c.cfg.RequestTimeout}

	form := url.Values{"username": {user}, "password": {pass}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("crawlclient: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: read login response: %w", err)
	}
	if !strings.Contains(string(body), c.cfg.WelcomeText) {
		return nil, fmt.Errorf("crawlclient: login failed for user %q", user)
	}

	c.log.Info().Str("user", user).Msg("crawlclient: login succeeded")
	return &Session{client: client, cfg: c.cfg}, nil
}

// ListFinished fetches the match listing page for userID and scrapes it for
// finished-match export URLs within the trailing window of days.
//
// The source site's listing endpoint takes the window as a query parameter
// and returns only finished matches already filtered server-side; the days
// argument is threaded through unmodified so the pipeline's window request
// and this client's fetch stay in lockstep.
func (s *Session) ListFinished(ctx context.Context, userID string, days int) ([]string, error) {
	u := fmt.Sprintf("%s%s?user=%s&days=%d", s.cfg.BaseURL, s.cfg.ListPath, url.QueryEscape(userID), days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: build list request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: list request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crawlclient: read list response: %w", err)
	}

	matches := exportHrefRE.FindAllStringSubmatch(string(body), -1)
	seen := make(map[string]bool, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		href := m[1]
		if seen[href] {
			continue
		}
		seen[href] = true
		urls = append(urls, s.cfg.BaseURL+href)
	}
	return urls, nil
}

// Download fetches one transcript's raw text.
func (s *Session) Download(ctx context.Context, transcriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("crawlclient: build download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("crawlclient: download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crawlclient: download %s: status %d", transcriptURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("crawlclient: read download response: %w", err)
	}
	return string(body), nil
}

// MatchIDFromURL extracts a stable identifier from an export URL for use as
// the analyzed-match key, falling back to the full URL if the shape is
// unrecognized.
func MatchIDFromURL(transcriptURL string) string {
	idx := strings.LastIndex(transcriptURL, "/")
	if idx == -1 || idx == len(transcriptURL)-1 {
		return transcriptURL
	}
	return transcriptURL[idx+1:]
}
