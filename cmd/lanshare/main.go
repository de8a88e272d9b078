package main

import (
	"fmt"
	"os"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
