package main

import (
	"os"

	"github.com/goforbroke1006/stagechain/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
