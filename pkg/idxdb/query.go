package idxdb

import (
	"fmt"
	"strings"

	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// KeyRange selects keys between Low and High. A nil bound is open-ended;
// the zero KeyRange matches everything.
type KeyRange struct {
	Low           any
	High          any
	LowExclusive  bool
	HighExclusive bool

	only bool
}

// Only returns the range matching exactly key.
func Only(key any) KeyRange {
	return KeyRange{Low: key, High: key, only: true}
}

// Bound returns the range between low and high.
func Bound(low, high any, lowExclusive, highExclusive bool) KeyRange {
	return KeyRange{Low: low, High: high, LowExclusive: lowExclusive, HighExclusive: highExclusive}
}

// LowerBound returns the range of keys at or above (above when exclusive)
// low.
func LowerBound(low any, exclusive bool) KeyRange {
	return KeyRange{Low: low, LowExclusive: exclusive}
}

// UpperBound returns the range of keys at or below (below when exclusive)
// high.
func UpperBound(high any, exclusive bool) KeyRange {
	return KeyRange{High: high, HighExclusive: exclusive}
}

// Encode encodes both bounds for path.
func (r KeyRange) Encode(path KeyPath) (EncodedRange, error) {
	var out EncodedRange

	if r.only && r.Low == nil {
		return out, fmt.Errorf("%w: key is nil", ErrInvalidKeyShape)
	}

	if r.Low != nil {
		low, err := keycodec.Encode(r.Low, path)
		if err != nil {
			return out, fmt.Errorf("lower bound: %w", err)
		}

		out.Low, out.HasLow, out.LowExclusive = low, true, r.LowExclusive
	}

	if r.High != nil {
		high, err := keycodec.Encode(r.High, path)
		if err != nil {
			return out, fmt.Errorf("upper bound: %w", err)
		}

		out.High, out.HasHigh, out.HighExclusive = high, true, r.HighExclusive
	}

	return out, nil
}

// String formats the range in interval notation, e.g. "[2, 4)".
func (r KeyRange) String() string {
	var b strings.Builder

	if r.LowExclusive || r.Low == nil {
		b.WriteString("(")
	} else {
		b.WriteString("[")
	}

	if r.Low == nil {
		b.WriteString("-inf")
	} else {
		fmt.Fprint(&b, r.Low)
	}

	b.WriteString(", ")

	if r.High == nil {
		b.WriteString("+inf")
	} else {
		fmt.Fprint(&b, r.High)
	}

	if r.HighExclusive || r.High == nil {
		b.WriteString(")")
	} else {
		b.WriteString("]")
	}

	return b.String()
}

// EncodedRange is a [KeyRange] over encoded keys.
type EncodedRange struct {
	Low, High                   string
	HasLow, HasHigh             bool
	LowExclusive, HighExclusive bool
}

// AboveLow reports whether key satisfies the lower bound.
func (r EncodedRange) AboveLow(key string) bool {
	if !r.HasLow {
		return true
	}

	if r.LowExclusive {
		return key > r.Low
	}

	return key >= r.Low
}

// BelowHigh reports whether key satisfies the upper bound.
func (r EncodedRange) BelowHigh(key string) bool {
	if !r.HasHigh {
		return true
	}

	if r.HighExclusive {
		return key < r.High
	}

	return key <= r.High
}

// Contains reports whether key is inside the range.
func (r EncodedRange) Contains(key string) bool {
	return r.AboveLow(key) && r.BelowHigh(key)
}

// Empty reports whether no key can satisfy the range.
func (r EncodedRange) Empty() bool {
	if !r.HasLow || !r.HasHigh {
		return false
	}

	if r.Low > r.High {
		return true
	}

	return r.Low == r.High && (r.LowExclusive || r.HighExclusive)
}

// QueryOptions controls ordering and paging of index reads.
type QueryOptions struct {
	// Reverse returns entries in descending key order.
	Reverse bool

	// Limit caps the number of returned entries. 0 means no limit.
	Limit int

	// Offset skips entries before collecting.
	Offset int
}

// Validate rejects negative limits and offsets with [ErrInvalidInput].
func (o QueryOptions) Validate() error {
	if o.Limit < 0 {
		return fmt.Errorf("%w: limit %d is negative", ErrInvalidInput, o.Limit)
	}

	if o.Offset < 0 {
		return fmt.Errorf("%w: offset %d is negative", ErrInvalidInput, o.Offset)
	}

	return nil
}

// Resolution combines per-term full-text matches.
type Resolution int

const (
	// ResolveAnd keeps items matching every term.
	ResolveAnd Resolution = iota
	// ResolveOr keeps items matching any term.
	ResolveOr
)

func (r Resolution) String() string {
	switch r {
	case ResolveAnd:
		return "and"
	case ResolveOr:
		return "or"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// ParseResolution parses "and" or "or" (case-insensitive).
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(s) {
	case "and":
		return ResolveAnd, nil
	case "or":
		return ResolveOr, nil
	default:
		return 0, fmt.Errorf("%w: unknown resolution %q", ErrInvalidInput, s)
	}
}
