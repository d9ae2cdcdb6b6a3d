package ctl

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show recent crawl runs",
		Run:   runHistory,
	})
}

type crawlHistoryEntry struct {
	ID               string  `json:"id"`
	StartedAt        string  `json:"startedAt"`
	FinishedAt       *string `json:"finishedAt,omitempty"`
	MatchesTotal     int     `json:"matchesTotal"`
	MatchesProcessed int     `json:"matchesProcessed"`
	QuizzesAdded     int     `json:"quizzesAdded"`
	Error            *string `json:"error,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) {
	client := newClient()
	var entries []crawlHistoryEntry
	if _, err := client.do(cmd.Context(), "GET", "/getCrawlHistory", nil, &entries); err != nil {
		exitErr("fetch crawl history", err)
	}

	if len(entries) == 0 {
		fmt.Println("no crawl runs yet")
		return
	}

	for _, e := range entries {
		started, err := time.Parse(time.RFC3339, e.StartedAt)
		when := e.StartedAt
		if err == nil {
			when = humanize.Time(started)
		}

		status := fmt.Sprintf("%d/%d matches processed, %d quizzes added", e.MatchesProcessed, e.MatchesTotal, e.QuizzesAdded)
		if e.Error != nil {
			status = "failed: " + *e.Error
		} else if e.FinishedAt == nil {
			status = "in progress"
		}

		fmt.Printf("%-12s %-8s %s\n", when, e.ID, status)
	}
}
