package main

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/keyval/internal/interp"
	"github.com/calvinalkan/keyval/internal/kvconfig"
	"github.com/calvinalkan/keyval/internal/kvstore"
	"github.com/calvinalkan/keyval/internal/kvtext"
)

type app struct {
	cfg    kvconfig.Config
	logger *zap.Logger
	stdout *os.File
	stderr *os.File
}

type commandFunc func(a *app, args []string) error

var commands = map[string]commandFunc{
	"get":    cmdGet,
	"set":    cmdSet,
	"remove": cmdRemove,
	"keys":   cmdKeys,
	"exists": cmdExists,
	"save":   cmdSave,
	"dump":   cmdDump,
	"repl":   cmdRepl,
}

// loadStore opens the configured store file. A missing file is treated as
// an empty store, matching the ergonomics of a CLI that bootstraps its own
// data file on first use.
func (a *app) loadStore() (*kvstore.Store, error) {
	store := kvstore.New(kvstore.WithLogger(a.logger))

	if _, err := os.Stat(a.cfg.StorePath); errors.Is(err, os.ErrNotExist) {
		return store, nil
	}

	result, err := kvtext.LoadFile(store, a.cfg.StorePath, a.logger)
	if err != nil && !errors.Is(err, kvtext.ErrSyntax) {
		return nil, err
	}

	for _, perr := range result.Errors {
		fmt.Fprintln(a.stderr, perr.Error())
	}

	return store, nil
}

func (a *app) saveStore(store *kvstore.Store) error {
	return kvtext.SaveFile(store, a.cfg.StorePath, kvtext.SaveOptions{
		Align:       a.cfg.Align,
		Interpolate: a.cfg.Interpolate,
	})
}

func cmdGet(a *app, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	doInterp := fs.Bool("interp", false, "expand ${path} references")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("usage: kv get <key> [--interp]")
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	key := []byte(fs.Arg(0))

	value, ok := store.Get(key)
	if !ok {
		return fmt.Errorf("key not found: %s", key)
	}

	if *doInterp {
		expanded, err := interp.Expand(store, value)
		if err != nil {
			return fmt.Errorf("interpolating %s: %w", key, err)
		}

		value = expanded
	}

	fmt.Fprintln(a.stdout, string(value))

	return nil
}

func cmdSet(a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: kv set <key> <value>")
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	if err := store.Set([]byte(args[0]), []byte(args[1])); err != nil {
		return err
	}

	return a.saveStore(store)
}

func cmdRemove(a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kv remove <key>")
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	store.Remove([]byte(args[0]))

	return a.saveStore(store)
}

func cmdKeys(a *app, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else if len(args) > 1 {
		return errors.New("usage: kv keys [path]")
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	for _, seg := range store.GetKeys([]byte(path)) {
		fmt.Fprintln(a.stdout, string(seg))
	}

	return nil
}

func cmdExists(a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kv exists <path>")
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, store.Exists([]byte(args[0])))

	return nil
}

func cmdSave(a *app, args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	align := fs.Bool("align", a.cfg.Align, "pad key columns to a common width")
	doInterp := fs.Bool("interp", a.cfg.Interpolate, "expand ${path} references in values")

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.loadStore()
	if err != nil {
		return err
	}

	return kvtext.SaveFile(store, a.cfg.StorePath, kvtext.SaveOptions{Align: *align, Interpolate: *doInterp})
}

func cmdDump(a *app, args []string) error {
	store, err := a.loadStore()
	if err != nil {
		return err
	}

	fmt.Fprint(a.stdout, store.DebugString())

	return nil
}
