package tid

import (
	"math"
	"slices"
	"testing"
	"time"
)

func TestTIDFlags(t *testing.T) {
	id := FromParts(100, 5, MC)
	if !id.IsSet(MC) {
		t.Error("MC should be set")
	}
	if id.IsSet(AdHoc) {
		t.Error("AdHoc should not be set")
	}
	if id.IsInvalid() {
		t.Error("FromParts should be valid")
	}
	id = id.Set(AdHoc)
	if !id.IsSet(MC | AdHoc) {
		t.Error("MC|AdHoc should be set")
	}
	stripped := id.StripFlags()
	if stripped.Flags != 0 {
		t.Errorf("StripFlags() flags = %#x, want 0", stripped.Flags)
	}
	if !Open().StripFlags().IsInvalid() {
		t.Error("StripFlags must keep Invalid")
	}
	if id.Timestamp() != 100 || id.Lower() != 5 {
		t.Errorf("parts = %d/%d, want 100/5", id.Timestamp(), id.Lower())
	}
}

func TestTIDOrdering(t *testing.T) {
	a := FromParts(10, 0xFFFFFFFF)
	b := FromParts(11, 0)
	if !a.Less(b) || a.Compare(b) != -1 || b.Compare(a) != 1 {
		t.Errorf("%v should sort before %v", a, b)
	}
	// Flags do not participate in ordering.
	if a.Compare(a.Set(MC|AdHoc)) != 0 {
		t.Error("flags changed ordering")
	}
	if !a.Equal(a.Set(MC)) {
		t.Error("flags changed equality")
	}
	if a.Equal(Open()) || Open().Equal(a) {
		t.Error("valid TID equal to invalid")
	}
	if !Open().Equal(Open()) {
		t.Error("invalid TIDs should be equal")
	}
	if a.Next() != b {
		t.Errorf("Next() = %v, want %v", a.Next(), b)
	}
	if b.Prev() != a {
		t.Errorf("Prev() = %v, want %v", b.Prev(), a)
	}
	if !Open().Next().IsInvalid() || !Open().Prev().IsInvalid() {
		t.Error("Next/Prev of invalid must stay invalid")
	}
	if !(TID{Value: math.MaxUint64}).Next().IsInvalid() {
		t.Error("overflow must yield invalid")
	}
	if !(TID{}).Prev().IsInvalid() {
		t.Error("underflow must yield invalid")
	}
	if got := FromParts(1, 2, MC).Next(); !got.IsSet(MC) {
		t.Error("Next must keep flags")
	}
}

func TestToken(t *testing.T) {
	ts := time.Date(2011, 10, 8, 7, 7, 9, 0, time.UTC)
	id := New(ts, 0xabcd)
	const want = "2011_10_08T07_07_09Z_0x0000abcd"
	if got := id.Token(); got != want {
		t.Fatalf("Token() = %q, want %q", got, want)
	}
	if len(want) != tokenLen {
		t.Fatalf("token length = %d, want %d", len(want), tokenLen)
	}
	if got := ParseToken(want); got != id {
		t.Errorf("ParseToken() = %v, want %v", got, id)
	}
	if !id.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", id.Time(), ts)
	}
	if got := Open().Token(); got != OpenToken {
		t.Errorf("Open().Token() = %q", got)
	}
	// Non-UTC input is normalized.
	local := ts.In(time.FixedZone("CET", 3600))
	if New(local, 0xabcd) != id {
		t.Error("New() depends on the time zone")
	}
	// Flags are not part of the token.
	if got := ParseToken(id.Set(MC).Token()); got != id {
		t.Errorf("ParseToken() = %v, want %v", got, id)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ids := []TID{
		{},
		FromParts(1, 1),
		FromParts(1451703845, 0),
		FromParts(1451703845, 0xFFFFFFFF),
		FromParts(math.MaxUint32, math.MaxUint32),
	}
	for _, id := range ids {
		tok := id.Token()
		if len(tok) != tokenLen {
			t.Errorf("Token(%d) length = %d", id.Value, len(tok))
		}
		if got := ParseToken(tok); got != id {
			t.Errorf("ParseToken(%q) = %v, want %v", tok, got, id)
		}
	}
}

func TestTokenSortable(t *testing.T) {
	ids := []TID{
		FromParts(1451703845, 2),
		FromParts(100, 0),
		FromParts(1451703845, 0x10),
		FromParts(1451703846, 0),
		FromParts(1451703845, 1),
	}
	toks := make([]string, len(ids))
	for i, id := range ids {
		toks[i] = id.Token()
	}
	slices.SortFunc(ids, TID.Compare)
	slices.Sort(toks)
	for i := range ids {
		if ids[i].Token() != toks[i] {
			t.Errorf("position %d: %q != %q", i, ids[i].Token(), toks[i])
		}
	}
}

func TestParseTokenMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"Empty", ""},
		{"Short", "2011_10_08T07_07_09Z_0x0000abc"},
		{"Long", "2011_10_08T07_07_09Z_0x0000abcde"},
		{"Separator", "2011_10_08T07_07_09Z-0x0000abcd"},
		{"NoHexPrefix", "2011_10_08T07_07_09Z_00000abcd"},
		{"BadHex", "2011_10_08T07_07_09Z_0x0000abcg"},
		{"BadMonth", "2011_13_08T07_07_09Z_0x0000abcd"},
		{"BadTime", "2011_10_08X07_07_09Z_0x0000abcd"},
		{"PreEpoch", "1969_12_31T23_59_59Z_0x00000000"},
		{"Lowercase", "open"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseToken(tc.in); !got.IsInvalid() {
				t.Errorf("ParseToken(%q) = %v, want invalid", tc.in, got)
			}
			if IsToken(tc.in) {
				t.Errorf("IsToken(%q) = true", tc.in)
			}
		})
	}
	if !IsToken(OpenToken) {
		t.Error("IsToken(OPEN) = false")
	}
}

func TestTextMarshal(t *testing.T) {
	tests := []TID{
		FromParts(1451703845, 7),
		FromParts(1451703845, 7, MC),
		FromParts(1451703845, 7, MC, AdHoc),
		FromParts(1451703845, 7, AdHoc),
		Open(),
	}
	for _, id := range tests {
		b, err := id.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got TID
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != id {
			t.Errorf("UnmarshalText(%q) = %#v, want %#v", b, got, id)
		}
	}
	for _, bad := range []string{"", "nope", "OPEN+XX", "2011_10_08T07_07_09Z_0x0000abcd+mc"} {
		var got TID
		if err := got.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("UnmarshalText(%q) succeeded", bad)
		}
	}
}
