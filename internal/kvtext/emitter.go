package kvtext

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/keyval/internal/escape"
	"github.com/calvinalkan/keyval/internal/interp"
	"github.com/calvinalkan/keyval/internal/kvstore"
)

// SaveOptions controls text-format serialization.
type SaveOptions struct {
	// Interpolate expands "${path}" references in values before escaping.
	// Keys are never interpolated. A recursion-limit failure aborts the
	// save entirely.
	Interpolate bool

	// Align pads every key column to the width of the widest escaped,
	// backtick-quoted key so that '=' lines up across the file.
	Align bool
}

// Save forces the store into sorted order and writes the canonical text
// representation to w. One line per key, "`key` = `value`\n", terminated
// newline on every line including the last.
func Save(store *kvstore.Store, w io.Writer, opts SaveOptions) error {
	keys := store.GetAllKeys()

	width := 0
	if opts.Align {
		for _, k := range keys {
			if n := escape.Len(k) + 2; n > width {
				width = n
			}
		}
	}

	bw := bufio.NewWriter(w)

	for _, k := range keys {
		value, _ := store.Get(k)

		if opts.Interpolate {
			expanded, err := interp.Expand(store, value)
			if err != nil {
				return fmt.Errorf("kvtext: save %q: %w", k, err)
			}

			value = expanded
		}

		if escape.Len(k) > store.MaxStrLen() || escape.Len(value) > store.MaxStrLen() {
			return fmt.Errorf("%w: %q", ErrStringTooLong, k)
		}

		quotedKey := escape.Quote(k)

		if _, err := bw.Write(quotedKey); err != nil {
			return fmt.Errorf("kvtext: write: %w", err)
		}

		for pad := len(quotedKey); pad < width; pad++ {
			if err := bw.WriteByte(' '); err != nil {
				return fmt.Errorf("kvtext: write: %w", err)
			}
		}

		if _, err := bw.WriteString(" = "); err != nil {
			return fmt.Errorf("kvtext: write: %w", err)
		}

		if _, err := bw.Write(escape.Quote(value)); err != nil {
			return fmt.Errorf("kvtext: write: %w", err)
		}

		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("kvtext: write: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("kvtext: flush: %w", err)
	}

	return nil
}

// SaveFile renders the store's canonical text representation and replaces
// path with it atomically, so a crash mid-write never leaves a truncated
// file behind.
func SaveFile(store *kvstore.Store, path string, opts SaveOptions) error {
	var buf bytes.Buffer

	if err := Save(store, &buf, opts); err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpenFailure, path, err)
	}

	return nil
}
