package main

import (
	"os"

	"github.com/medelman17/suechef/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
