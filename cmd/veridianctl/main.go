package main

import (
	"os"

	"github.com/veridian-systems/veridian/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
