// Package main starts the socket demo service and handles termination.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bjaus/socketdispatch/internal/cmd/socketdemo"
)

func main() {
	cfg, err := socketdemo.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := socketdemo.Run(ctx, cfg, os.Stderr); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
