package main

import (
	"os"

	"github.com/lukefun/Q-System/cmd/qsys/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
