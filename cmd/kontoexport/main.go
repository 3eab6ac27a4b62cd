package main

import (
	"os"

	"github.com/FACorreiaa/kontoexport/cmd/kontoexport/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
