package main

import (
	"os"

	"github.com/rustyeddy/equity/cmd/equity/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
