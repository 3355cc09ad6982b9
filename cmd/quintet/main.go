package main

import (
	"os"

	"github.com/quintetdev/quintet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
