// Package main is the entry point for the addon host.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/addonhost/internal/app"
	"github.com/dshills/addonhost/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	opts.Version = version
	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string) (app.Options, error) {
	var (
		opts        app.Options
		addons      string
		showVersion bool
	)

	fs := flag.NewFlagSet("addonhost", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath, "Path to configuration file")
	fs.StringVar(&opts.ConfigPath, "c", config.DefaultPath, "Path to configuration file (shorthand)")
	fs.StringVar(&opts.AddonsDir, "dir", "", "Addon directory (overrides addons.dir)")
	fs.StringVar(&opts.Listen, "listen", "", "Control server address (overrides control.listen)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&addons, "addons", "", "Load only these addon signatures this session; the load policy is not saved")
	fs.StringVar(&opts.PolicyPath, "policy", "", "Read the load policy from this file; it is never written")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "addonhost - addon lifecycle host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: addonhost [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  addonhost                              Run with addonhost.toml\n")
		fmt.Fprintf(os.Stderr, "  addonhost -dir ./addons -listen :7341  Serve the control API\n")
		fmt.Fprintf(os.Stderr, "  addonhost -addons 0xC10C0001           Debug a single addon\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if showVersion {
		fmt.Printf("addonhost %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	var pinned bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "addons" {
			pinned = true
		}
	})
	if pinned {
		sigs, err := config.ParseSignatureList(addons)
		if err != nil {
			return opts, err
		}
		opts.Pinned = sigs
	}

	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}
