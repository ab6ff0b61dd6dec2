package main

import (
	"os"

	"github.com/spigell/resume-batch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
