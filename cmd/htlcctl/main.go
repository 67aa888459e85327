// Package main provides htlcctl, an operator tool for compiling, auditing
// and driving hashed timelock contracts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klingon-exchange/swapkit/internal/config"
	"github.com/klingon-exchange/swapkit/internal/storage"
	"github.com/klingon-exchange/swapkit/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// env is shared by every subcommand.
type env struct {
	cfg *config.Config
	log *logging.Logger

	dataDir string
	store   *storage.Storage
}

// openStore opens the details store on first use.
func (e *env) openStore() (*storage.Storage, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := storage.New(&storage.Config{DataDir: e.dataDir})
	if err != nil {
		return nil, err
	}
	e.store = store
	return store, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

type command struct {
	name  string
	usage string
	run   func(e *env, args []string) error
}

var commands = []command{
	{"compile", "compile a UTXO redeem script and derive its addresses", runCompile},
	{"inspect", "decode a compiled UTXO redeem script", runInspect},
	{"evm-call", "build or broadcast a swap contract call", runEVMCall},
	{"evm-status", "read an order's on-chain state and event history", runEVMStatus},
	{"decred-fund", "derive a Decred funding address", runDecredFund},
	{"list", "list stored contract details", runList},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: htlcctl [flags] <command> [command flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.swapkit", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("htlcctl %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	path := *configFile
	if path == "" {
		path = config.Path(*dataDir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal("Failed to load config", "path", path, "error", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if isFlagSet("data-dir") || cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = *dataDir
	}

	log = logging.New(&cfg.Logging)
	logging.SetDefault(log)
	log.Debug("Config loaded", "path", path)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	e := &env{cfg: cfg, log: log, dataDir: filepath.Clean(cfg.Storage.DataDir)}
	defer e.close()

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name == name {
			if err := c.run(e, flag.Args()[1:]); err != nil {
				e.close()
				log.Fatal("Command failed", "command", name, "error", err)
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
