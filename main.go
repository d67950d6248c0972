package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/lumen-engine/lumen/engine"
	"github.com/lumen-engine/lumen/engine/config"
	"github.com/lumen-engine/lumen/engine/core"
	"github.com/lumen-engine/lumen/testbed"
)

func main() {
	cfg, err := config.Load("lumen.toml")
	if err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	game := testbed.New()

	eng, err := engine.New(cfg, game.Game)
	if err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	if err := eng.Initialize(); err != nil {
		core.LogFatal(err.Error())
		os.Exit(1)
	}

	// Stop the frame loop on SIGTERM and friends; Shutdown runs after Run
	// returns so teardown happens on the main thread.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		eng.Stop()
	}()

	if err := eng.Run(); err != nil {
		core.LogError(err.Error())
	}

	if err := eng.Shutdown(); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}
