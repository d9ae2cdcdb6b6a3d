package crawlclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, welcome bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		if welcome {
			w.Write([]byte("<html><body>Welcome, alice!</body></html>"))
		} else {
			w.Write([]byte("<html><body>Invalid credentials</body></html>"))
		}
	})
	mux.HandleFunc("/bg/matches.php", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`
			<a href="/bg/export/match-1.mat">match 1</a>
			<a href="/bg/export/match-2.mat">match 2</a>
			<a href="/bg/export/match-1.mat">duplicate</a>
			<a href="/other/page">unrelated</a>
		`))
	})
	mux.HandleFunc("/bg/export/match-1.mat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("transcript text for match 1"))
	})
	return httptest.NewServer(mux)
}

func TestLoginSucceedsOnWelcomeText(t *testing.T) {
	srv := newTestServer(t, true)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLoginFailsWithoutWelcomeText(t *testing.T) {
	srv := newTestServer(t, false)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected login failure")
	}
}

func TestListFinishedDedupsAndQualifiesURLs(t *testing.T) {
	srv := newTestServer(t, true)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	sess, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	urls, err := sess.ListFinished(context.Background(), "alice", 30)
	if err != nil {
		t.Fatalf("ListFinished: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2: %v", len(urls), urls)
	}
	if urls[0] != srv.URL+"/bg/export/match-1.mat" {
		t.Fatalf("urls[0] = %q", urls[0])
	}
}

func TestDownloadReturnsBody(t *testing.T) {
	srv := newTestServer(t, true)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	sess, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	text, err := sess.Download(context.Background(), srv.URL+"/bg/export/match-1.mat")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if text != "transcript text for match 1" {
		t.Fatalf("got %q", text)
	}
}

func TestMatchIDFromURL(t *testing.T) {
	got := MatchIDFromURL("https://example.com/bg/export/match-42.mat")
	if got != "match-42.mat" {
		t.Fatalf("got %q", got)
	}
}
