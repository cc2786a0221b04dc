package kvtext

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/calvinalkan/keyval/internal/kvstore"
)

// readAheadSize matches the specification's 4096-byte read-ahead buffer.
const readAheadSize = 4096

type parserState int

const (
	stateWaitingForKey parserState = iota
	stateComment
	stateQuotedString
	stateWaitingForEqOrRemove
	stateWaitingForValue
	stateWaitingForEOL
	stateEscape
)

// removeWord is the literal, case-sensitive word that triggers a removal
// operation; "r" has already been consumed when matchRemove is called.
const removeWord = "remove"

// LoadResult reports the outcome of a Load call: how many syntax errors
// were recovered from (capped at maxReportedErrors) and whether the parser
// halted early because the cap was exceeded.
type LoadResult struct {
	Errors      []*ParseError
	HaltedEarly bool
}

// Load parses the key/val text format from r, applying each assignment or
// removal directly to store. It returns ErrSyntax (with the first recorded
// ParseError's message appended) if any grammar violations were recovered from;
// result always reports the full list regardless of the returned error.
func Load(store *kvstore.Store, r io.Reader, logger *zap.Logger) (LoadResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &parser{
		br:     bufio.NewReaderSize(r, readAheadSize),
		store:  store,
		logger: logger,
		line:   1,
	}

	p.run()

	result := LoadResult{Errors: p.errs, HaltedEarly: p.halted}

	if len(p.errs) > 0 {
		return result, fmt.Errorf("%w: %s", ErrSyntax, p.errs[0].Error())
	}

	return result, nil
}

// LoadFile opens path and parses it with Load. A missing or unreadable file
// is reported as ErrOpenFailure, distinct from ErrSyntax.
func LoadFile(store *kvstore.Store, path string, logger *zap.Logger) (LoadResult, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled, like the original library
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %s: %w", ErrOpenFailure, path, err)
	}

	defer func() { _ = f.Close() }()

	return Load(store, f, logger)
}

type parser struct {
	br     *bufio.Reader
	store  *kvstore.Store
	logger *zap.Logger

	state      parserState
	stackState parserState

	key   []byte
	value []byte
	cur   *[]byte // points at key or value, whichever is currently being built

	line int

	errs   []*ParseError
	halted bool
}

func (p *parser) run() {
	for {
		b, err := p.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.handleEOF()

				return
			}
			// A stream error mid-read: treat like EOF for recovery purposes
			// after recording it as a syntax-adjacent failure.
			p.syntaxErrorAndRecover("read error: " + err.Error())

			return
		}

		if p.step(b) {
			return // halted: error cap exceeded
		}
	}
}

// step processes one byte and returns true if the parser should stop
// entirely (error cap exceeded).
func (p *parser) step(b byte) (halt bool) {
	switch p.state {
	case stateWaitingForKey:
		return p.stepWaitingForKey(b)
	case stateComment:
		p.stepComment(b)
	case stateQuotedString:
		return p.stepQuotedString(b)
	case stateWaitingForEqOrRemove:
		return p.stepWaitingForEqOrRemove(b)
	case stateWaitingForValue:
		return p.stepWaitingForValue(b)
	case stateWaitingForEOL:
		return p.stepWaitingForEOL(b)
	case stateEscape:
		p.stepEscape(b)
	}

	return false
}

func (p *parser) stepWaitingForKey(b byte) bool {
	switch b {
	case ' ', '\t':
	case '\n':
		p.line++
	case '#':
		p.state = stateComment
	case '`':
		p.key = p.key[:0]
		p.cur = &p.key
		p.stackState = stateWaitingForEqOrRemove
		p.state = stateQuotedString
	default:
		return p.syntaxErrorAndRecover(fmt.Sprintf("unexpected byte %q while waiting for a key", b))
	}

	return false
}

func (p *parser) stepComment(b byte) {
	if b == '\n' {
		p.line++
		p.state = stateWaitingForKey
	}
}

func (p *parser) stepQuotedString(b byte) bool {
	switch b {
	case '`':
		p.state = p.stackState
	case '\\':
		p.state = stateEscape
	case '\n':
		return p.syntaxErrorAndRecover("unterminated quoted string at end of line")
	default:
		*p.cur = append(*p.cur, b)
	}

	return false
}

func (p *parser) stepEscape(b byte) {
	switch b {
	case '`', '\\':
		*p.cur = append(*p.cur, b)
	default:
		// Unrecognized escape: the backslash round-trips alongside the byte.
		*p.cur = append(*p.cur, '\\', b)
	}

	p.state = stateQuotedString
}

func (p *parser) stepWaitingForEqOrRemove(b byte) bool {
	switch b {
	case ' ', '\t':
		return false
	case '=':
		p.value = p.value[:0]
		p.cur = &p.value
		p.state = stateWaitingForValue

		return false
	case 'r':
		return p.matchRemove()
	default:
		return p.syntaxErrorAndRecover(fmt.Sprintf("unexpected byte %q, expected '=' or 'remove'", b))
	}
}

// matchRemove consumes the remaining letters of the literal word "remove"
// (the leading 'r' has already been matched by the caller) and, on a full
// match, performs the removal.
func (p *parser) matchRemove() bool {
	for i := 1; i < len(removeWord); i++ {
		b, err := p.br.ReadByte()
		if err != nil {
			return p.syntaxErrorAndRecover("unexpected end of input while matching 'remove'")
		}

		if b != removeWord[i] {
			return p.syntaxErrorAndRecover("unexpected byte, expected 'remove'")
		}
	}

	p.store.Remove(p.key)
	p.state = stateWaitingForEOL

	return false
}

func (p *parser) stepWaitingForValue(b byte) bool {
	switch b {
	case ' ', '\t':
		return false
	case '`':
		p.stackState = stateWaitingForEOL
		p.state = stateQuotedString

		return false
	default:
		return p.syntaxErrorAndRecover(fmt.Sprintf("unexpected byte %q, expected a quoted value", b))
	}
}

func (p *parser) stepWaitingForEOL(b byte) bool {
	switch b {
	case ' ', '\t':
		return false
	case '\n':
		p.commit()
		p.line++
		p.state = stateWaitingForKey

		return p.halted
	default:
		return p.syntaxErrorAndRecover(fmt.Sprintf("unexpected byte %q at end of line", b))
	}
}

// commit applies the pending assignment. Removal already happened eagerly
// in matchRemove, since it needs no value.
//
// A decoded key or value exceeding the store's length limit is an argument
// validation failure, not a grammar violation -- it is dropped silently,
// the same as the original C loader ignoring KeyVal_setValue's return
// value at the commit point, and is not counted toward the recorded-error
// cap or reflected in Load's returned error.
func (p *parser) commit() {
	if p.cur != &p.value {
		return
	}

	if err := p.store.Set(p.key, p.value); err != nil {
		p.logger.Warn("kvtext: dropped oversized assignment", zap.Int("line", p.line), zap.Error(err))
	}
}

func (p *parser) handleEOF() {
	switch p.state {
	case stateWaitingForKey, stateComment:
		return
	case stateWaitingForEOL:
		p.commit()
	case stateWaitingForEqOrRemove, stateWaitingForValue, stateQuotedString, stateEscape:
		p.syntaxErrorAndRecover("unexpected end of input")
	}
}

// syntaxErrorAndRecover records a recovered syntax error at the current
// line, skips input through the end of that line (or EOF), and resets to
// stateWaitingForKey. Returns true if the error cap was exceeded and the
// parser must halt immediately.
func (p *parser) syntaxErrorAndRecover(msg string) bool {
	if len(p.errs) >= maxReportedErrors {
		p.halted = true

		return true
	}

	p.errs = append(p.errs, &ParseError{Line: p.line, Msg: msg})
	p.logger.Warn("kvtext: syntax error", zap.Int("line", p.line), zap.String("msg", msg))

	// Put the offending byte back so that, when it is itself the newline,
	// it ends this line instead of the skip swallowing the next one.
	_ = p.br.UnreadByte()

	p.skipToEOL()
	p.state = stateWaitingForKey

	return false
}

func (p *parser) skipToEOL() {
	for {
		b, err := p.br.ReadByte()
		if err != nil {
			return
		}

		if b == '\n' {
			p.line++

			return
		}
	}
}
