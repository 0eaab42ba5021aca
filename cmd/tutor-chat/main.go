// ABOUTME: Entry point for tutor-chat, a terminal client for the learning coach
// ABOUTME: Wires config, logging, metrics and the conversation registry behind cobra commands

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
