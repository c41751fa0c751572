/*
Vireo testbed: opens a window and renders the demo scene with the
engine package.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vireo/engine"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/testbed"
)

func main() {
	configPath := flag.String("config", "vireo.toml", "path to the TOML configuration")
	texture := flag.String("texture", "", "image used as the cube albedo (PNG, JPEG, BMP or TIFF)")
	flag.Parse()

	os.Exit(run(*configPath, *texture))
}

func run(configPath, texture string) int {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		core.LogError("%v", err)
		return 1
	}

	e, err := engine.New(testbed.NewTestGame(texture).Game, cfg)
	if err != nil {
		core.LogError("%v", err)
		return 1
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			core.LogError("shutdown: %v", err)
		}
	}()

	if err := e.Initialize(); err != nil {
		core.LogError("initialization failed: %+v", err)
		return 1
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Quit()
	}()

	if err := e.Run(); err != nil {
		core.LogError("engine stopped: %+v", err)
		return 1
	}
	return 0
}
