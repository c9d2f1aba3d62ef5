// Package identifier implements the reversible codec that turns a managed
// object's user-visible key (an absolute path, or a package name) into an
// opaque string safe to use as a filename on the state store.
//
// Encoding uses case-insensitive base32 (RFC 4648, upper-case alphabet),
// which yields only the characters [A-Z2-7=] — safe on every filesystem the
// agent targets and exactly reversible.
package identifier

import (
	"encoding/base32"
	"fmt"
	"strings"
)

// ID is an opaque, filesystem-safe encoding of a managed object's key.
type ID string

// String returns the raw encoded form.
func (id ID) String() string {
	return string(id)
}

// Encode converts a user-visible key (absolute path or package name) into
// its ID form. Encoding is total: every byte string has exactly one ID.
func Encode(key string) ID {
	return ID(base32.StdEncoding.EncodeToString([]byte(key)))
}

// Decode recovers the original key from an ID. Decode rejects ids that do
// not round-trip rather than silently passing malformed input through —
// callers must treat a decode error as "not a valid object id", not as an
// empty key.
func Decode(id ID) (string, error) {
	// StdEncoding is case-sensitive; ids read back from disk may have been
	// normalized to upper-case by a case-insensitive filesystem, so we
	// upper-case before decoding (the alphabet is already upper-case, this
	// only matters for ids a caller constructed by hand).
	raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(string(id)))
	if err != nil {
		return "", fmt.Errorf("identifier: decoding %q: %w", string(id), err)
	}

	return string(raw), nil
}

// MustEncode is a convenience for call sites that construct ids from
// compile-time-known keys (tests, fixtures).
func MustEncode(key string) ID {
	return Encode(key)
}
