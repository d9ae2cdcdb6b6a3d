package ctl

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show aggregate quiz statistics",
		Run:   runStats,
	})
}

type statisticsResponse struct {
	TotalQuizzes  int      `json:"totalQuizzes"`
	TotalAttempts int      `json:"totalAttempts"`
	TotalCorrect  int      `json:"totalCorrect"`
	WorstQuizzes  []string `json:"worstQuizzes"`
}

func runStats(cmd *cobra.Command, args []string) {
	client := newClient()
	var resp statisticsResponse
	if _, err := client.do(cmd.Context(), "GET", "/getStatistics", nil, &resp); err != nil {
		exitErr("fetch statistics", err)
	}

	fmt.Printf("quizzes:  %s\n", humanize.Comma(int64(resp.TotalQuizzes)))
	fmt.Printf("attempts: %s\n", humanize.Comma(int64(resp.TotalAttempts)))
	fmt.Printf("correct:  %s\n", humanize.Comma(int64(resp.TotalCorrect)))
	if resp.TotalAttempts > 0 {
		pct := 100 * float64(resp.TotalCorrect) / float64(resp.TotalAttempts)
		fmt.Printf("accuracy: %.1f%%\n", pct)
	}
	if len(resp.WorstQuizzes) > 0 {
		fmt.Println("worst quizzes:")
		for _, id := range resp.WorstQuizzes {
			fmt.Printf("  %s\n", id)
		}
	}
}
