// wcnotify prints WooCommerce order and stock notifications received
// over MQTT.
//
// It connects to the broker named in the config file, subscribes to
// the fixed set of topics published by the WooCommerce MQTT
// notification plugin, and writes one report per message to stdout.
// Logs go to stderr.
//
// Usage:
//
//	wcnotify run              Connect and report until interrupted
//	wcnotify topics [kind...] Print the topic table for the configured prefix
//	wcnotify init [dir]       Write an example config.yaml
//	wcnotify version          Print version and build information
//	wcnotify -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/wcnotify/examples"
	"github.com/nugget/wcnotify/internal/buildinfo"
	"github.com/nugget/wcnotify/internal/config"
	"github.com/nugget/wcnotify/internal/dispatch"
	"github.com/nugget/wcnotify/internal/mqtt"
	"github.com/nugget/wcnotify/internal/report"
	"github.com/nugget/wcnotify/internal/topics"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run], so the whole lifecycle can be driven
// from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Reports go to stdout, logs to stderr.
// Arguments are parsed by hand to avoid the flag package's globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "run":
		return runNotifier(ctx, stdout, stderr, configPath)
	case "topics":
		return runTopics(stdout, configPath, outputFmt, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runNotifier handles "wcnotify run". It blocks until SIGINT/SIGTERM.
//
// The shutdown sequence is:
//  1. the signal cancels ctx, which interrupts any blocking connect
//  2. the control loop and drop reporter return
//  3. the session publishes "offline" (if configured) and disconnects
func runNotifier(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := config.NewLogger(stderr, slog.LevelInfo, "text")
	logger.Info("starting wcnotify", buildinfo.LogAttrs()...)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Everything after this point uses the configured level and format.
	logger = cfg.Logger(stderr)
	logger.Info("config loaded",
		"path", cfgPath,
		"broker", cfg.MQTT.Broker,
		"topic_prefix", cfg.MQTT.TopicPrefix,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	clientID, err := mqtt.ClientID(cfg.MQTT, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load mqtt client id: %w", err)
	}
	logger.Info("mqtt client id loaded", "client_id", clientID)

	registry := topics.NewRegistry(cfg.MQTT.TopicPrefix)
	dispatcher := newDispatcher(registry, report.New(stdout, logger), logger)
	logger.Info("dispatcher ready",
		"prefix", registry.Prefix(),
		"handlers", len(dispatcher.Bound()),
	)

	broker, err := mqtt.NewBroker(cfg.MQTT, cfg.Network, clientID, logger)
	if err != nil {
		return err
	}
	mgr := mqtt.NewManager(mqtt.NewManagerConfig(cfg), registry,
		mqtt.NewHostNetwork(broker.Host()), broker, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.ReportDrops(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		err := mgr.Run(gctx, func(msg mqtt.Message) {
			dispatcher.Dispatch(msg.Topic, msg.Payload)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	runErr := g.Wait()
	logRunExit(ctx, logger, runErr)
	st := mgr.Status()
	logger.Info("connection status",
		mqtt.ServiceNetwork, st[mqtt.ServiceNetwork],
		mqtt.ServiceBroker, st[mqtt.ServiceBroker],
		"connects", mgr.Connects(),
	)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := mgr.Close(closeCtx); err != nil {
		logger.Error("mqtt shutdown failed", "error", err)
	}

	logger.Info("wcnotify stopped", "uptime", buildinfo.Uptime().String())
	return runErr
}

// logRunExit records why the control loop stopped. A signal cancels
// ctx; anything else that ends the loop is a failure.
func logRunExit(ctx context.Context, logger *slog.Logger, runErr error) {
	switch {
	case ctx.Err() != nil:
		logger.Info("shutdown signal received")
	case runErr != nil:
		logger.Error("mqtt control loop failed", "error", runErr)
	default:
		logger.Warn("mqtt control loop stopped without a signal")
	}
}

// newDispatcher binds the report handler for every event kind.
func newDispatcher(registry *topics.Registry, reporter *report.Reporter, logger *slog.Logger) *dispatch.Dispatcher {
	d := dispatch.New(registry, logger)
	for _, k := range topics.Kinds() {
		d.Handle(k, reporter.HandlerFor(k))
	}
	return d
}

// topicEntry is one row of `wcnotify topics -o json`.
type topicEntry struct {
	Kind  string `json:"kind"`
	Topic string `json:"topic"`
}

// runTopics prints the topic table, or only the rows for the named
// kinds. When no config file exists the defaults are used, so the
// command works before setup. A config file that exists but does not
// load is an error.
func runTopics(w io.Writer, configPath, outputFmt string, names []string) error {
	cfg := config.Default()
	if cfgPath, err := config.FindConfig(configPath); err == nil {
		if cfg, err = config.Load(cfgPath); err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	} else if configPath != "" {
		return err
	}

	kinds := topics.Kinds()
	if len(names) > 0 {
		kinds = make([]topics.Kind, 0, len(names))
		for _, name := range names {
			k, err := topics.ParseKind(name)
			if err != nil {
				return err
			}
			kinds = append(kinds, k)
		}
	}

	registry := topics.NewRegistry(cfg.MQTT.TopicPrefix)
	entries := make([]topicEntry, 0, len(kinds))
	for _, k := range kinds {
		entries = append(entries, topicEntry{Kind: k.String(), Topic: registry.Topic(k)})
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %-18s %s\n", e.Kind, e.Topic)
	}
	return nil
}

// runInit writes an example config.yaml into dir. An existing file is
// never overwritten.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  - %s already exists, left unchanged\n", path)
		return nil
	}
	// Config files hold broker credentials.
	if err := os.WriteFile(path, examples.ConfigYAML, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set mqtt.broker and credentials in config.yaml, then run: wcnotify run")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range buildinfo.InfoKeys {
		fmt.Fprintf(w, "  %-12s %s\n", k+":", info[k])
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "wcnotify - WooCommerce MQTT notification console")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wcnotify [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run               Connect to the broker and print notifications")
	fmt.Fprintln(w, "  topics [kind...]  Print the subscribed topics")
	fmt.Fprintln(w, "  init [dir]        Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version           Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/wcnotify/config.yaml, /etc/wcnotify/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
