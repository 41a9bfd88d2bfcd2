package tid

// Interval is a closed range [Start, Stop] of TIDs.
//
// An invalid Stop makes the interval right-open: it extends to +infinity.
// An invalid Start makes the whole interval invalid.
type Interval struct {
	Start TID
	Stop  TID
}

// NewInterval returns [start, stop].
func NewInterval(start, stop TID) Interval {
	return Interval{Start: start, Stop: stop}
}

// IsValid returns true if Start is a valid TID.
func (iv Interval) IsValid() bool {
	return !iv.Start.IsInvalid()
}

// IsOpen returns true if the interval has no upper bound.
func (iv Interval) IsOpen() bool {
	return iv.Stop.IsInvalid()
}

// Contains returns true if Start <= x and x <= Stop (or Stop is open).
//
// An invalid x or an invalid interval never matches.
func (iv Interval) Contains(x TID) bool {
	if x.IsInvalid() || !iv.IsValid() {
		return false
	}
	if x.Less(iv.Start) {
		return false
	}
	return iv.IsOpen() || !iv.Stop.Less(x)
}

// Disjoint returns true if the intervals share no TID.
//
// Two intervals overlap exactly when one of them contains the start of the
// other.
func (iv Interval) Disjoint(other Interval) bool {
	return !iv.Contains(other.Start) && !other.Contains(iv.Start)
}

// Equal returns true if both endpoints are equal, see [TID.Equal].
func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.Stop.Equal(other.Stop)
}

// String returns "[start, stop]".
func (iv Interval) String() string {
	return "[" + iv.Start.Token() + ", " + iv.Stop.Token() + "]"
}

// CompareStart orders intervals by Start, for use with slices.SortFunc.
func CompareStart(a, b Interval) int {
	return a.Start.Compare(b.Start)
}
