// Package main is the inventra command: it serves the local API and offers
// maintenance commands over the same data directory.
package main

import "os"

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
