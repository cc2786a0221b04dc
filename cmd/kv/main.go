// Command kv is a small CLI over the hierarchical key/value store: get,
// set, remove, enumerate sub-keys, and an interactive REPL, all backed by a
// single text-format file.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/calvinalkan/keyval/internal/kvconfig"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	env := map[string]string{}
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				env[e[:i]] = e[i+1:]

				break
			}
		}
	}

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	cfg, err := kvconfig.Load(workDir, env)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	logger := zap.NewNop()

	if !cfg.Quiet {
		built, buildErr := zap.NewProduction()
		if buildErr == nil {
			logger = built
		}
	}

	defer func() { _ = logger.Sync() }()

	if len(args) < 2 {
		printUsage(stdout)

		return 0
	}

	cmd, rest := args[1], args[2:]

	app := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}

	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintln(stderr, "error: unknown command:", cmd)
		printUsage(stderr)

		return 1
	}

	if err := handler(app, rest); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return 1
	}

	return 0
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "kv - hierarchical key/value store")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: kv <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  get <key> [--interp]        print the value for key")
	fmt.Fprintln(w, "  set <key> <value>           set key to value")
	fmt.Fprintln(w, "  remove <key>                remove key")
	fmt.Fprintln(w, "  keys [path]                 list immediate sub-keys of path")
	fmt.Fprintln(w, "  exists <path>                test whether path exists in any form")
	fmt.Fprintln(w, "  save [--align] [--interp]   rewrite the store file canonically")
	fmt.Fprintln(w, "  dump                        print every key = value (debug)")
	fmt.Fprintln(w, "  repl                        interactive shell")
}
