// Package escape implements the backtick-and-backslash escape discipline
// shared by the store's length limit and the text format's quoting rules.
// It is kept separate from internal/kvstore and internal/kvtext so that
// both can depend on it without creating an import cycle between the two.
package escape

// Len returns the escaped length of s: its byte length plus one extra byte
// for every interior backtick or backslash. This is the length the store's
// L_max limit is measured against, even though the raw, unescaped bytes are
// what callers pass to Set/Get.
func Len(s []byte) int {
	n := len(s)

	for _, b := range s {
		if b == '`' || b == '\\' {
			n++
		}
	}

	return n
}

// Quote surrounds s with backticks, escaping interior backticks and
// backslashes with a leading backslash.
func Quote(s []byte) []byte {
	out := make([]byte, 0, Len(s)+2)
	out = append(out, '`')

	for _, b := range s {
		if b == '`' || b == '\\' {
			out = append(out, '\\')
		}

		out = append(out, b)
	}

	out = append(out, '`')

	return out
}
