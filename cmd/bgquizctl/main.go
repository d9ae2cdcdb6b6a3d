package main

import (
	"os"

	"github.com/yourusername/bgquiz/internal/ctl"
)

func main() {
	if err := ctl.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
