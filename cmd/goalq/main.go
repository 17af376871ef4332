// Package main implements the goalq command: the task API server, the
// dispatcher worker, schema migrations, credential helpers and a small
// client for the HTTP API.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
