package main

import (
	"os"

	"github.com/lunamoth/heartflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
