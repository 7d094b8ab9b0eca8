package main

import (
	"os"

	"github.com/harun/conduit/internal/cli"
)

func main() {
	// cobra already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
