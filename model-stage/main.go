package main

import (
	"os"

	"github.com/animus-labs/animus-tracking/internal/platform/cli"
)

func main() {
	os.Exit(cli.Run(newRootCommand()))
}
