package main

import (
	"os"

	"github.com/docharvest/docharvest/cmd/docharvest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
