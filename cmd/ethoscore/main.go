// EthosCore is a deterministic, rule-gated scenario simulation engine.
// Usage: ethoscore [--version] [--store <dir>] [--db <file>] <scenario_dir> <command> [args...]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethoslab/ethoscore/cli"
	"github.com/ethoslab/ethoscore/loader"
	"github.com/ethoslab/ethoscore/serve"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var storeDir string
	var dbPath string
	var scenarioDir string
	var command []string

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--version":
			fmt.Printf("ethoscore %s (commit %s, built %s)\n", version, commit, date)
			return
		case args[i] == "--store":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "--store requires a directory path\n")
				os.Exit(1)
			}
			i++
			storeDir = args[i]
		case args[i] == "--db":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "--db requires a file path\n")
				os.Exit(1)
			}
			i++
			dbPath = args[i]
		case scenarioDir == "":
			scenarioDir = args[i]
		default:
			command = args[i:]
			i = len(args)
		}
	}

	if scenarioDir == "" || len(command) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: ethoscore [--version] [--store <dir>] [--db <file>] <scenario_dir> <command> [args...]\n")
		fmt.Fprintf(os.Stderr, "Run 'ethoscore <scenario_dir> help' for the command list.\n")
		os.Exit(1)
	}

	// Load and compile Lua scenario content.
	defs, err := loader.Load(scenarioDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}

	store, cleanup, err := openStore(storeDir, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	mgr := session.NewManager(store)
	mgr.Register(defs)

	switch command[0] {
	case "play":
		if len(command) != 2 {
			fmt.Fprintf(os.Stderr, "Usage: ethoscore <scenario_dir> play <session>\n")
			os.Exit(1)
		}
		eng, err := mgr.Resume(command[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := tui.Run(eng, mgr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "serve":
		addr := ":8080"
		if len(command) > 1 {
			addr = command[1]
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		srv := serve.NewServer(mgr, serve.NewLogger())
		if err := srv.Run(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		c := cli.New(mgr, os.Stdout, os.Stderr)
		os.Exit(c.Run(command))
	}
}

// openStore builds the session store: SQLite when --db is given, one
// JSON file per session otherwise.
func openStore(storeDir, dbPath string) (session.Store, func(), error) {
	if dbPath != "" {
		st, err := session.OpenSQLite(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
	if storeDir == "" {
		home, _ := os.UserHomeDir()
		storeDir = filepath.Join(home, ".ethoscore", "sessions")
	}
	return session.NewFileStore(storeDir), func() {}, nil
}
