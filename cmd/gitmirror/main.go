package main

import (
	"fmt"
	"os"

	"github.com/gitmirror/gitmirror/internal/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
