package main

import (
	"os"

	"github.com/rustyeddy/riskdesk/cmd/riskdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
