package main

import (
	"os"

	"github.com/BrianHuang880507/CogScreen-AI/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
