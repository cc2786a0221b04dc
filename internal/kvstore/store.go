// Package kvstore implements the lazily-sorted, path-ordered key/value
// store described in the specification's CORE: the doubling array, the
// deferred-equality binary search, the insertion-sort incorporation pass
// that reconciles appended entries, and the hierarchy range-scan queries
// built on top of it.
package kvstore

import (
	"go.uber.org/zap"

	"github.com/calvinalkan/keyval/internal/escape"
	"github.com/calvinalkan/keyval/internal/pathorder"
)

// DefaultMinCapacity is the smallest backing-array size a Store ever shrinks
// to.
const DefaultMinCapacity = 16

// DefaultMaxStrLen is the escaped-length ceiling (L_max) applied to both
// keys and values.
const DefaultMaxStrLen = 1024

// Store is a lazily-sorted doubling array of Entry, ordered by
// internal/pathorder once ensureSorted has run. It is not safe for
// concurrent use; every public method assumes single-threaded access, per
// the specification's concurrency model.
type Store struct {
	data         []Entry
	used         int
	sortedPrefix int
	minCapacity  int
	maxStrLen    int
	logger       *zap.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger sets the structured logger used for diagnostics (resize
// events, nothing else -- parse diagnostics are logged by internal/kvtext;
// internal/interp logs nothing). A nil logger, or omitting this option, is equivalent to the
// process-wide "quiet" flag from the specification's design notes: it
// installs zap.NewNop() so nothing is ever written.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxStrLen overrides the escaped-length ceiling applied to keys and
// values. Tests use this to probe the boundary without building 1024-byte
// fixtures; production callers should leave it at DefaultMaxStrLen.
func WithMaxStrLen(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxStrLen = n
		}
	}
}

// WithMinCapacity overrides the floor the backing array shrinks to. Rounded
// up to the next power of two, minimum DefaultMinCapacity.
func WithMinCapacity(n int) Option {
	return func(s *Store) {
		if n > s.minCapacity {
			s.minCapacity = nextPow2(n)
		}
	}
}

// New creates an empty Store with the initial capacity.
func New(opts ...Option) *Store {
	s := &Store{
		minCapacity: DefaultMinCapacity,
		maxStrLen:   DefaultMaxStrLen,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.data = make([]Entry, s.minCapacity)

	return s
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

func (s *Store) capacity() int {
	return len(s.data)
}

// MaxStrLen returns the escaped-length ceiling this Store enforces on keys
// and values.
func (s *Store) MaxStrLen() int {
	return s.maxStrLen
}

// Set stores value under key, overwriting any existing value for the same
// key. It rejects keys or values whose escaped length exceeds the
// configured limit.
func (s *Store) Set(key, value []byte) error {
	if key == nil || value == nil {
		return ErrInvalidArgument
	}

	if escape.Len(key) > s.maxStrLen || escape.Len(value) > s.maxStrLen {
		return ErrInvalidArgument
	}

	key = cloneBytes(key)
	value = cloneBytes(value)

	if s.used == 0 {
		s.append(Entry{Key: key, Value: value})
		s.sortedPrefix = s.used

		return nil
	}

	if s.sortedPrefix == s.used {
		last := s.data[s.used-1].Key
		if pathorder.Less(last, key) {
			// Fast path: appending to an already-sorted store keeps it sorted.
			s.append(Entry{Key: key, Value: value})
			s.sortedPrefix = s.used

			return nil
		}

		if idx := s.findIdealIndex(key); idx < s.used && pathorder.Compare(s.data[idx].Key, key) == 0 {
			s.data[idx].Value = value

			return nil
		}
	}

	// Unsorted tail append: sortedPrefix is left untouched.
	s.append(Entry{Key: key, Value: value})

	return nil
}

func (s *Store) append(e Entry) {
	if s.used == s.capacity() {
		s.grow()
	}

	s.data[s.used] = e
	s.used++
}

func (s *Store) grow() {
	newCap := s.capacity() * 2
	if newCap == 0 {
		newCap = s.minCapacity
	}

	next := make([]Entry, newCap)
	copy(next, s.data[:s.used])
	s.data = next

	s.logger.Debug("kvstore: grew backing array", zap.Int("capacity", newCap))
}

func (s *Store) shrinkIfNeeded() {
	threshold := s.capacity()/2 - 2
	if s.used >= threshold {
		return
	}

	newCap := s.capacity() / 2
	if newCap < s.minCapacity {
		newCap = s.minCapacity
	}

	if newCap == s.capacity() {
		return
	}

	next := make([]Entry, newCap)
	copy(next, s.data[:s.used])
	s.data = next

	s.logger.Debug("kvstore: shrank backing array", zap.Int("capacity", newCap))
}

// Get forces ensureSorted and returns a copy of the value stored under key.
// ok is false if the key is absent; this is not an error condition.
func (s *Store) Get(key []byte) (value []byte, ok bool) {
	raw, found := s.getRaw(key)
	if !found {
		return nil, false
	}

	return cloneBytes(raw), true
}

// getRaw returns the live, unowned value slice for key, used internally by
// the interpolator so it never copies a value it is about to discard.
func (s *Store) getRaw(key []byte) ([]byte, bool) {
	s.EnsureSorted()

	idx, ok := s.findIndex(key)
	if !ok {
		return nil, false
	}

	return s.data[idx].Value, true
}

// GetRaw exposes getRaw to collaborators outside this package (the
// interpolator) without granting them write access to the Store.
func (s *Store) GetRaw(key []byte) ([]byte, bool) {
	return s.getRaw(key)
}

// Remove deletes key from the Store. Removing an absent key is a no-op.
func (s *Store) Remove(key []byte) {
	s.EnsureSorted()

	idx, ok := s.findIndex(key)
	if !ok {
		return
	}

	copy(s.data[idx:s.used-1], s.data[idx+1:s.used])
	s.data[s.used-1] = Entry{}
	s.used--
	s.sortedPrefix = s.used

	s.shrinkIfNeeded()
}

// Size forces ensureSorted (collapsing any duplicate keys left in the
// unsorted tail) and returns the number of distinct stored keys.
func (s *Store) Size() int {
	s.EnsureSorted()

	return s.used
}

// EnsureSorted performs the insertion-sort incorporation pass described in
// the specification: every entry in the unsorted tail is located via binary
// search against the sorted prefix and either extends it, overwrites an
// existing key (last write wins), or is inserted in place via a memmove.
// It is a no-op if the Store is already fully sorted.
func (s *Store) EnsureSorted() {
	if s.sortedPrefix == s.used {
		return
	}

	tailEnd := s.used

	for i := s.sortedPrefix; i < tailEnd; i++ {
		incoming := s.data[i]

		j := s.findIdealIndexWithin(incoming.Key, s.sortedPrefix)

		switch {
		case j == s.sortedPrefix:
			s.data[s.sortedPrefix] = incoming
			s.sortedPrefix++
		case pathorder.Compare(s.data[j].Key, incoming.Key) == 0:
			s.data[j].Value = incoming.Value
		default:
			copy(s.data[j+1:s.sortedPrefix+1], s.data[j:s.sortedPrefix])
			s.data[j] = incoming
			s.sortedPrefix++
		}
	}

	// Entries beyond the newly grown sorted prefix (if collapses shrank it
	// below the original tail end) are stale; clear them so nothing is
	// exposed twice.
	for k := s.sortedPrefix; k < tailEnd; k++ {
		s.data[k] = Entry{}
	}

	s.used = s.sortedPrefix
}

// findIdealIndex runs the deferred-equality binary search over the full
// live range [0, used).
func (s *Store) findIdealIndex(key []byte) int {
	return s.findIdealIndexWithin(key, s.used)
}

// findIdealIndexWithin runs the same search restricted to [0, hi), used by
// EnsureSorted to search only the already-sorted region.
func (s *Store) findIdealIndexWithin(key []byte, hi int) int {
	lo := 0

	for lo != hi {
		mid := (lo + hi) / 2

		if pathorder.Compare(s.data[mid].Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// findIndex is findIdealIndex followed by an equality test.
func (s *Store) findIndex(key []byte) (int, bool) {
	idx := s.findIdealIndex(key)
	if idx >= s.used {
		return 0, false
	}

	if pathorder.Compare(s.data[idx].Key, key) != 0 {
		return 0, false
	}

	return idx, true
}

// DebugString renders every live entry as "key = value" (unescaped, one per
// line, sorted order) for ad hoc debugging. It is not part of the
// persistence format -- see internal/kvtext for that. Grounded on the
// original C library's KeyVal_print, which served the same purpose.
func (s *Store) DebugString() string {
	s.EnsureSorted()

	var out []byte

	for i := 0; i < s.used; i++ {
		out = append(out, s.data[i].Key...)
		out = append(out, " = "...)
		out = append(out, s.data[i].Value...)
		out = append(out, '\n')
	}

	return string(out)
}
