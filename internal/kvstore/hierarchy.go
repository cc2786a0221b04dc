package kvstore

import "bytes"

const sep = "::"

// HasValue reports whether key is stored as a leaf (an entry with exactly
// that key exists).
func (s *Store) HasValue(key []byte) bool {
	s.EnsureSorted()

	_, ok := s.findIndex(key)

	return ok
}

// HasKeys reports whether any stored key has the form path + "::" + rest.
// An exact match on path itself does not count -- path must have at least
// one descendant.
//
// The original C implementation reads one slot past the match when the
// matched key happens to be the last entry in the array; this port bounds
// checks after skipping the exact match instead of reproducing that read
// (see design notes: this is a corrected, not replicated, defect).
func (s *Store) HasKeys(path []byte) bool {
	s.EnsureSorted()

	idx := s.findIdealIndex(path)

	if idx < s.used && bytes.Equal(s.data[idx].Key, path) {
		idx++
	}

	if idx >= s.used {
		return false
	}

	return hasPrefixSep(s.data[idx].Key, path)
}

// Exists reports whether path names anything in the store at all -- a leaf
// value, an interior hierarchy, or both.
func (s *Store) Exists(path []byte) bool {
	s.EnsureSorted()

	idx := s.findIdealIndex(path)
	if idx >= s.used {
		return false
	}

	if bytes.Equal(s.data[idx].Key, path) {
		return true
	}

	return hasPrefixSep(s.data[idx].Key, path)
}

// GetKeys returns the immediate child segments stored directly below path.
// An empty path means the top level, in which case every stored key
// contributes its first segment -- there is no "::" to skip, since nothing
// precedes the root.
func (s *Store) GetKeys(path []byte) [][]byte {
	s.EnsureSorted()

	var start, end, skip int

	if len(path) == 0 {
		start, end, skip = 0, s.used, 0
	} else {
		start = s.findIdealIndex(path)
		if start >= s.used {
			return nil
		}

		if bytes.Equal(s.data[start].Key, path) {
			start++
		}

		end = start
		for end < s.used && hasPrefixSep(s.data[end].Key, path) {
			end++
		}

		skip = len(path) + len(sep)
	}

	if start == end {
		return nil
	}

	var segments [][]byte

	var last []byte

	for i := start; i < end; i++ {
		rest := s.data[i].Key[skip:]

		idx := bytes.Index(rest, []byte(sep))
		seg := rest

		if idx >= 0 {
			seg = rest[:idx]
		}

		if last != nil && bytes.Equal(seg, last) {
			continue
		}

		segCopy := cloneBytes(seg)
		segments = append(segments, segCopy)
		last = segCopy
	}

	return segments
}

// GetAllKeys returns a copy of every stored key, in sorted order.
func (s *Store) GetAllKeys() [][]byte {
	s.EnsureSorted()

	out := make([][]byte, s.used)
	for i := 0; i < s.used; i++ {
		out[i] = cloneBytes(s.data[i].Key)
	}

	return out
}

// hasPrefixSep reports whether key equals path + "::" + (at least one more
// byte).
func hasPrefixSep(key, path []byte) bool {
	if len(key) <= len(path)+len(sep) {
		return false
	}

	if !bytes.HasPrefix(key, path) {
		return false
	}

	return key[len(path)] == ':' && key[len(path)+1] == ':'
}
