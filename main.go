/*
framegraph runs the forward+ testbed frame graph on the recorder or the
Vulkan device.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/config"
	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/spaghettifunk/framegraph/testbed"
)

func main() {
	if err := run(); err != nil {
		core.LogFatal("%s", err)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", "", "TOML config file, watched for changes while running")
	backend := flag.StringP("backend", "b", "", "device backend: recorder or vulkan")
	frames := flag.IntP("frames", "n", -1, "frames to render, 0 runs until interrupted")
	trace := flag.Bool("trace", false, "print the recorder trace of every submitted frame")
	dumpConfig := flag.Bool("dump-config", false, "print the effective config and exit")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *backend != "" {
		cfg.Run.Backend = *backend
	}
	if *frames >= 0 {
		cfg.Run.Frames = *frames
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *dumpConfig {
		return cfg.Encode(os.Stdout)
	}

	tb := testbed.NewTestGame(cfg, *configPath)
	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}

	// signal context to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}
	runErr := e.Run(ctx)

	if *trace {
		if rec := e.Renderer().Recorder(); rec != nil {
			if err := rec.Dump(os.Stdout); err != nil {
				core.LogError(err.Error())
			}
		} else {
			fmt.Fprintln(os.Stderr, "trace is only available on the recorder backend")
		}
	}

	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
