package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var quizPlayer string

func init() {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Fetch the next highest-priority quiz",
		Run:   runQuiz,
	}
	cmd.Flags().StringVar(&quizPlayer, "player", "", "restrict to quizzes about this player's moves")
	RootCmd.AddCommand(cmd)
}

func runQuiz(cmd *cobra.Command, args []string) {
	client := newClient()
	path := "/getQuiz"
	if quizPlayer != "" {
		path += "?player=" + quizPlayer
	}

	var raw json.RawMessage
	status, err := client.do(cmd.Context(), "GET", path, nil, &raw)
	if err != nil {
		exitErr("fetch quiz", err)
	}
	if status == http.StatusNoContent {
		fmt.Println("no quizzes available")
		return
	}
	pretty, _ := json.MarshalIndent(raw, "", "  ")
	fmt.Println(string(pretty))
}
