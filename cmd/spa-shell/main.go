package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/always-cache/spa-shell/cmd/spa-shell/commands"

	"github.com/rs/zerolog/log"
)

// this is set by goreleaser
var version string

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if version != "" {
		commands.Version = version
	}
	if err := commands.New().Execute(ctx); err != nil {
		log.Error().Msgf("%+v", err)
		return 1
	}
	return 0
}
