package main

import (
	"os"

	"github.com/learnhub/payhook/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
