// Package main is the entry point for the pktkit capture dissector.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/pktkit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
