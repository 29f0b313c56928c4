// Package main is the entry point for the sentinelctl CLI tool.
package main

import (
	"os"

	"github.com/forenx/sentinel/cmd/sentinelctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
