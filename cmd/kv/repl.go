package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/keyval/internal/interp"
	"github.com/calvinalkan/keyval/internal/kvstore"
)

// cmdRepl starts an interactive shell over the store, backed by liner for
// history and line editing, following the same pattern as the corpus's
// sloty CLI.
func cmdRepl(a *app, _ []string) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)

	historyPath := replHistoryPath()
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)

		_ = f.Close()
	}

	fmt.Fprintf(a.stdout, "kv repl - store at %s\n", a.cfg.StorePath)
	fmt.Fprintln(a.stdout, "commands: get <key> [--interp], set <key> <value>, remove <key>, keys [path], exists <path>, save, dump, exit")

	dirty := false

	for {
		text, err := line.Prompt("kv> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		line.AppendHistory(text)

		fields := strings.Fields(text)

		switch strings.ToLower(fields[0]) {
		case "exit", "quit":
			if dirty {
				if err := a.saveStore(store); err != nil {
					fmt.Fprintln(a.stderr, "error saving:", err)
				}
			}

			if f, err := os.Create(historyPath); err == nil {
				_, _ = line.WriteHistory(f)

				_ = f.Close()
			}

			return nil
		case "get":
			replGet(a, store, fields[1:])
		case "set":
			if len(fields) >= 3 {
				if err := store.Set([]byte(fields[1]), []byte(strings.Join(fields[2:], " "))); err != nil {
					fmt.Fprintln(a.stderr, "error:", err)
				} else {
					dirty = true
				}
			} else {
				fmt.Fprintln(a.stderr, "usage: set <key> <value>")
			}
		case "remove":
			if len(fields) == 2 {
				store.Remove([]byte(fields[1]))
				dirty = true
			} else {
				fmt.Fprintln(a.stderr, "usage: remove <key>")
			}
		case "keys":
			replKeys(a, store, fields[1:])
		case "exists":
			if len(fields) == 2 {
				fmt.Fprintln(a.stdout, store.Exists([]byte(fields[1])))
			} else {
				fmt.Fprintln(a.stderr, "usage: exists <path>")
			}
		case "save":
			if err := a.saveStore(store); err != nil {
				fmt.Fprintln(a.stderr, "error saving:", err)
			} else {
				dirty = false
			}
		case "dump":
			fmt.Fprint(a.stdout, store.DebugString())
		default:
			fmt.Fprintln(a.stderr, "unknown command:", fields[0])
		}
	}

	if dirty {
		if err := a.saveStore(store); err != nil {
			fmt.Fprintln(a.stderr, "error saving:", err)
		}
	}

	return nil
}

func replGet(a *app, store *kvstore.Store, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, "usage: get <key> [--interp]")

		return
	}

	doInterp := len(args) > 1 && args[1] == "--interp"

	value, ok := store.Get([]byte(args[0]))
	if !ok {
		fmt.Fprintln(a.stderr, "key not found")

		return
	}

	if doInterp {
		expanded, err := interp.Expand(store, value)
		if err != nil {
			fmt.Fprintln(a.stderr, "error:", err)

			return
		}

		value = expanded
	}

	fmt.Fprintln(a.stdout, string(value))
}

func replKeys(a *app, store *kvstore.Store, args []string) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	for _, seg := range store.GetKeys([]byte(path)) {
		fmt.Fprintln(a.stdout, string(seg))
	}
}

func replHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".kv_history")
}
