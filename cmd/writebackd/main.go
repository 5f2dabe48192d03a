package main

import (
	"os"

	"github.com/dmeireles/writeback/cmd/writebackd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
