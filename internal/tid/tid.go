// Package tid defines TID, the ordered identifier of a point in the data
// stream, and Interval, a closed or right-open range of TIDs.
//
// # Layout
//
// A TID carries a 64-bit value and independent flag bits:
//   - Bits 63-32 of Value: UNIX timestamp in seconds.
//   - Bits 31-0 of Value: counter within that second.
//
// Ordering and equality only look at Value. The flags MC and AdHoc are
// orthogonal predicates. Invalid marks the sentinel that means "unknown" as a
// result and "unbounded" when used as an interval endpoint.
//
// # Token format
//
// [TID.Token] encodes a TID as a fixed-width, lexicographically sortable
// string usable in folder names: "2006_01_02T15_04_05Z_0x0000abcd". The
// invalid TID encodes as "OPEN".
package tid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Flags are the boolean properties attached to a TID.
//
// You may append flags, but never remove or reorder them.
type Flags uint32

const (
	// MC marks simulated (Monte-Carlo) data.
	MC Flags = 1 << iota
	// Invalid marks the sentinel TID.
	Invalid
	// AdHoc marks a TID that is not eligible for time-ranged lookups.
	AdHoc
)

const (
	// OpenToken is the token of the invalid TID, an unbounded endpoint.
	OpenToken = "OPEN"

	// tokenLen is the fixed length of an encoded TID token.
	tokenLen = 31

	timeLayout = "2006_01_02T15_04_05Z"
	// lowerSep separates the timestamp from the hex counter.
	lowerSep = "_0x"
)

// TID is an ordered identifier: a 64-bit value plus flags.
//
// The zero value is the valid TID at the UNIX epoch. Use [Open] for the
// invalid sentinel.
type TID struct {
	Value uint64
	Flags Flags
}

// New returns the TID for t (truncated to the second) with the given counter.
//
// Times before the epoch or after 2106 cannot be represented and yield [Open].
func New(t time.Time, lower uint32, flags ...Flags) TID {
	sec := t.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return Open()
	}
	return FromParts(uint32(sec), lower, flags...)
}

// FromParts builds a TID from its upper (timestamp) and lower (counter) halves.
func FromParts(upper, lower uint32, flags ...Flags) TID {
	id := TID{Value: uint64(upper)<<32 | uint64(lower)}
	for _, f := range flags {
		id.Flags |= f
	}
	return id
}

// Open returns the invalid TID.
func Open() TID {
	return TID{Flags: Invalid}
}

// IsInvalid returns true for the sentinel TID.
func (id TID) IsInvalid() bool {
	return id.Flags&Invalid != 0
}

// IsSet returns true if all bits of f are set.
func (id TID) IsSet(f Flags) bool {
	return id.Flags&f == f
}

// Set returns a copy of id with f set.
func (id TID) Set(f Flags) TID {
	id.Flags |= f
	return id
}

// Clear returns a copy of id with f cleared.
func (id TID) Clear(f Flags) TID {
	id.Flags &^= f
	return id
}

// StripFlags clears MC and AdHoc. Range boundaries on disk never carry them.
func (id TID) StripFlags() TID {
	return id.Clear(MC | AdHoc)
}

// Timestamp returns the upper 32 bits, seconds since the epoch.
func (id TID) Timestamp() uint32 {
	return uint32(id.Value >> 32)
}

// Lower returns the counter in the lower 32 bits.
func (id TID) Lower() uint32 {
	return uint32(id.Value)
}

// Time returns the timestamp as a UTC time.
func (id TID) Time() time.Time {
	return time.Unix(int64(id.Timestamp()), 0).UTC()
}

// Compare returns -1 if id < other, 0 if equal, 1 if id > other.
//
// Only Value participates; callers are expected to handle invalid TIDs first.
func (id TID) Compare(other TID) int {
	if id.Value < other.Value {
		return -1
	}
	if id.Value > other.Value {
		return 1
	}
	return 0
}

// Less reports whether id sorts before other.
func (id TID) Less(other TID) bool {
	return id.Value < other.Value
}

// Equal reports whether both TIDs denote the same point.
//
// Flags are ignored except Invalid: invalid TIDs are equal to each other and
// to no valid TID.
func (id TID) Equal(other TID) bool {
	if id.IsInvalid() || other.IsInvalid() {
		return id.IsInvalid() == other.IsInvalid()
	}
	return id.Value == other.Value
}

// Next returns the smallest TID after id. Invalid stays invalid and overflow
// yields [Open].
func (id TID) Next() TID {
	if id.IsInvalid() {
		return id
	}
	if id.Value == math.MaxUint64 {
		return Open()
	}
	id.Value++
	return id
}

// Prev returns the largest TID before id. Invalid stays invalid and underflow
// yields [Open].
func (id TID) Prev() TID {
	if id.IsInvalid() {
		return id
	}
	if id.Value == 0 {
		return Open()
	}
	id.Value--
	return id
}

// Token returns the fixed-width sortable encoding, or "OPEN" for the invalid
// TID. Flags are not encoded.
func (id TID) Token() string {
	if id.IsInvalid() {
		return OpenToken
	}
	return id.Time().Format(timeLayout) + fmt.Sprintf("%s%08x", lowerSep, id.Lower())
}

// ParseToken decodes a token produced by [TID.Token].
//
// Malformed tokens decode to [Open] and so does "OPEN"; use [IsToken] to tell
// them apart.
func ParseToken(s string) TID {
	id, ok := parseToken(s)
	if !ok {
		return Open()
	}
	return id
}

// IsToken returns true if s is "OPEN" or a well-formed TID token.
func IsToken(s string) bool {
	if s == OpenToken {
		return true
	}
	_, ok := parseToken(s)
	return ok
}

func parseToken(s string) (TID, bool) {
	if len(s) != tokenLen || s[20:23] != lowerSep {
		return TID{}, false
	}
	// No location in the layout: the result is UTC regardless of TZ.
	t, err := time.Parse(timeLayout, s[:20])
	if err != nil {
		return TID{}, false
	}
	lower, err := strconv.ParseUint(s[23:], 16, 32)
	if err != nil {
		return TID{}, false
	}
	id := New(t, uint32(lower))
	if id.IsInvalid() {
		return TID{}, false
	}
	return id, true
}

// String returns the token followed by the set flags, e.g.
// "2016_01_02T03_04_05Z_0x00000001+MC".
func (id TID) String() string {
	var b strings.Builder
	b.WriteString(id.Token())
	if id.IsSet(MC) {
		b.WriteString("+MC")
	}
	if id.IsSet(AdHoc) {
		b.WriteString("+AdHoc")
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler using [TID.String].
func (id TID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
//
// Unlike [ParseToken], malformed input is an error.
func (id *TID) UnmarshalText(data []byte) error {
	parts := strings.Split(string(data), "+")
	var parsed TID
	if parts[0] == OpenToken {
		parsed = Open()
	} else {
		var ok bool
		if parsed, ok = parseToken(parts[0]); !ok {
			return fmt.Errorf("invalid TID token %q", parts[0])
		}
	}
	for _, p := range parts[1:] {
		switch p {
		case "MC":
			parsed.Flags |= MC
		case "AdHoc":
			parsed.Flags |= AdHoc
		default:
			return fmt.Errorf("invalid TID flag %q", p)
		}
	}
	*id = parsed
	return nil
}
