package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

var crawlDays int

func init() {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Trigger a crawl-and-analyze job and watch its progress",
		Run:   runCrawl,
	}
	cmd.Flags().IntVar(&crawlDays, "days", 0, "crawl window in days (0 uses the server default)")
	RootCmd.AddCommand(cmd)
}

type enqueueResponse struct {
	JobID      string `json:"jobId"`
	AheadCount int    `json:"aheadCount"`
}

func runCrawl(cmd *cobra.Command, args []string) {
	client := newClient()
	ctx := cmd.Context()

	body := map[string]interface{}{}
	if crawlDays > 0 {
		body["days"] = crawlDays
	}

	var resp enqueueResponse
	if _, err := client.do(ctx, "POST", "/addLastMatchesAndSave", body, &resp); err != nil {
		exitErr("enqueue crawl", err)
	}
	fmt.Printf("job %s queued, %d ahead\n", resp.JobID, resp.AheadCount)

	err := client.streamSSE(ctx, "/addLastMatchesAndSave/stream?jobId="+resp.JobID, func(kind, data string) {
		fmt.Printf("%s: %s\n", kind, data)
	})
	if err != nil {
		exitErr("stream crawl progress", err)
	}
}
