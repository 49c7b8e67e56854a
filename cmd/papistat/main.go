// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command papistat counts hardware performance events.
//
// Usage:
//
//	papistat events [--avail] [--native]
//	papistat info
//	papistat count [-e EVENT]... [--repeat N] [--iters K]
//	papistat rate ipc|flips|flops|epc [EVENT]
//	papistat serve [-e EVENT]... [--web.listen-address ADDR]
//
// Settings come from defaults, then the YAML file named by --config, then
// PAPISTAT_* environment variables, then flags.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/aclements/go-papi/internal/config"
	"github.com/aclements/go-papi/internal/logger"
	"github.com/aclements/go-papi/papi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], nil, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "papistat: %v\n", err)
		os.Exit(1)
	}
}

// command is a parsed papistat subcommand.
type command struct {
	name string
	cfg  *config.Config
	out  io.Writer
	log  *zap.Logger

	avail, native bool // events

	repeat, iters int // count

	metric, event string // rate
}

// run runs papistat with the given arguments. environ is used in place of
// the process environment if non-nil.
func run(ctx context.Context, args, environ []string, stdout, stderr io.Writer) error {
	app := kingpin.New("papistat", "Count hardware performance events.")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	configFile := app.Flag("config", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)

	cmd := &command{out: stdout}
	eventsCmd := app.Command("events", "List preset and native events.")
	eventsCmd.Flag("avail", "List only presets this machine can count").BoolVar(&cmd.avail)
	eventsCmd.Flag("native", "Also list native events").BoolVar(&cmd.native)

	app.Command("info", "Describe the hardware, counter components, memory and executable as YAML.")

	countCmd := app.Command("count", "Count events over a busy loop.")
	countCmd.Flag("repeat", "Number of measurements").Default("1").IntVar(&cmd.repeat)
	countCmd.Flag("iters", "Iterations of the busy loop per measurement").Default("10000000").IntVar(&cmd.iters)

	rateCmd := app.Command("rate", "Measure a derived metric over the sample window.")
	rateCmd.Arg("metric", "ipc, flips, flops or epc").Required().EnumVar(&cmd.metric, "ipc", "flips", "flops", "epc")
	rateCmd.Arg("event", "Event counted by flips, flops or epc").StringVar(&cmd.event)

	app.Command("serve", "Export event counts to Prometheus.")

	name, err := app.Parse(args)
	if err != nil {
		return err
	}
	cmd.name = name

	cmd.cfg = config.DefaultConfig()
	if *configFile != "" {
		if cmd.cfg, err = config.FromFile(*configFile); err != nil {
			return err
		}
	}
	if err := cmd.cfg.ApplyEnv(environ); err != nil {
		return err
	}
	if err := updateConfig(cmd.cfg); err != nil {
		return err
	}

	cmd.log = logger.New(cmd.cfg.Log.Level, cmd.cfg.Log.Format, stderr)
	defer cmd.log.Sync()
	cmd.log.Debug("configuration loaded", zap.Stringer("config", cmd.cfg))

	b, err := newBackend(cmd.cfg.Backend, cmd.log)
	if err != nil {
		return err
	}
	lib := papi.New(b, papi.WithLogger(cmd.log), papi.WithSampleWindow(cmd.cfg.Sample.Window))
	version, err := lib.Init(papi.VersionCurrent)
	if err != nil {
		return err
	}
	defer lib.Shutdown()
	cmd.log.Debug("counter subsystem ready",
		zap.String("backend", cmd.cfg.Backend),
		zap.Int("version", papi.VersionMajor(version)))

	switch cmd.name {
	case "events":
		return cmd.listEvents(lib)
	case "info":
		return cmd.info(lib)
	case "count":
		return cmd.count(lib)
	case "rate":
		return cmd.rate(lib)
	case "serve":
		return cmd.serve(ctx, lib)
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}
