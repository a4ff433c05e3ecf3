package main

import (
	"os"

	"github.com/victornm/trivia/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
