package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SignalScanner/internal/app"
)

const usageText = `Usage: scanner [-config path] <command> [flags]

Commands:
  scan         full scan of every symbol (-lookback N limits rewrites to the last N days)
  incremental  resume every symbol from its bookmarks
  schedule     run incremental scans on the configured cron, with Telegram commands
  serve        serve the reporting API (add -schedule to also run the cron)
  export       write stored events to csv, json or parquet
  runs         show recent scan runs
  ingest       copy bars from the http or yahoo source into the store
`

func main() {
	os.Exit(run())
}

func run() int {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	configPath := flag.String("config", defaultPath, "config file (.yaml, .yml or .toml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	commands := map[string]func(context.Context, *app.App, []string) error{
		"scan":        runScan,
		"incremental": runIncremental,
		"schedule":    runSchedule,
		"serve":       runServe,
		"export":      runExport,
		"runs":        runRuns,
		"ingest":      runIngest,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := InitializeApp(app.ConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	defer cleanup()

	a.Log.Info().Str("command", cmd).Str("store", a.Store.Name()).Int("workers", a.Orchestrator.Workers()).Msg("signal scanner starting")
	if err := fn(ctx, a, args); err != nil {
		a.Log.Error().Err(err).Str("command", cmd).Msg("command failed")
		return 1
	}
	return 0
}
