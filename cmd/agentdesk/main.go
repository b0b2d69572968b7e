package main

import (
	"os"

	"github.com/crmforge/agentdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
