// Package ctl implements bgquizctl, a small operator CLI that talks to the
// bgquizserver HTTP surface over Basic auth: trigger a crawl and watch its
// progress, fetch the next quiz, and show statistics and crawl history.
//
// Grounded on rcliao-agent-memory's internal/cli package: a RootCmd with
// persistent flags plus one file per subcommand registering itself via
// init(), and an exitErr helper for a clean non-zero exit on failure.
package ctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	username  string
	password  string
)

// RootCmd is the top-level bgquizctl command.
var RootCmd = &cobra.Command{
	Use:   "bgquizctl",
	Short: "Operate a bgquiz server: trigger crawls, fetch quizzes, inspect stats",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "bgquiz server base URL")
	RootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "bgquiz account username (storage key)")
	RootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "source-site password, forwarded only when triggering a crawl")
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
