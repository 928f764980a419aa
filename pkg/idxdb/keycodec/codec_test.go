package keycodec_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

func Test_EncodeNumber_Matches_Reference_Format_When_Given_Known_Values(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{1, "10241"},
		{1.5, "10241.5"},
		{10, "10251"},
		{123.45, "10261.2345"},
		{0.5, "10235"},
		{1e-7, "10171"},
		{-1, "-10249"},
		{-1.5, "-10248.5"},
		{-10, "-10239"},
		{-0.5, "-10255"},
		{-8.25, "-10241.75"},
		{5e-324, "07005"},
	}

	for _, tt := range tests {
		got := keycodec.EncodeNumber(tt.in)
		if got != tt.want {
			t.Errorf("EncodeNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func Test_Encode_Preserves_Order_When_Keys_Are_Sorted_Across_Types(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Ascending by natural order: negatives, zero, positives, dates, strings.
	sorted := []any{
		-1e300,
		-12345.678,
		-100,
		-10,
		-9.5,
		-1.5,
		-1,
		-0.5,
		-1e-7,
		0,
		1e-7,
		0.5,
		1,
		1.5,
		2,
		10,
		99.5,
		100,
		1e300,
		base.Add(-365 * 24 * time.Hour),
		base,
		base.Add(time.Millisecond),
		"",
		"A",
		"a",
		"a b",
		"ab",
		"b",
		"é",
	}

	path := keycodec.Single("id")

	prev := ""

	for i, key := range sorted {
		got, err := keycodec.Encode(key, path)
		if err != nil {
			t.Fatalf("Encode(%v): %v", key, err)
		}

		if i > 0 && got <= prev {
			t.Errorf("Encode(%v) = %q, want > %q (encoding of %v)", key, got, prev, sorted[i-1])
		}

		prev = got
	}
}

func Test_Encode_Preserves_Order_When_Numbers_Are_Random(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))

	nums := make([]float64, 0, 2000)

	for range 2000 {
		mag := math.Pow(10, rng.Float64()*40-20)

		n := rng.Float64() * mag
		if rng.IntN(2) == 0 {
			n = -n
		}

		if n == 0 {
			continue
		}

		nums = append(nums, n)
	}

	slices.Sort(nums)
	nums = slices.Compact(nums)

	encoded := make([]string, len(nums))
	for i, n := range nums {
		encoded[i] = keycodec.EncodeNumber(n)
	}

	for i := 1; i < len(encoded); i++ {
		if encoded[i-1] >= encoded[i] {
			t.Fatalf("order violated: %v -> %q, %v -> %q", nums[i-1], encoded[i-1], nums[i], encoded[i])
		}
	}
}

func Test_Encode_Treats_Integer_And_Float_Alike_When_Values_Are_Equal(t *testing.T) {
	t.Parallel()

	path := keycodec.Single("n")

	a, err := keycodec.Encode(42, path)
	if err != nil {
		t.Fatal(err)
	}

	b, err := keycodec.Encode(42.0, path)
	if err != nil {
		t.Fatal(err)
	}

	c, err := keycodec.Encode(uint8(42), path)
	if err != nil {
		t.Fatal(err)
	}

	if a != b || b != c {
		t.Fatalf("equal numbers encoded differently: %q %q %q", a, b, c)
	}
}

func Test_Encode_Orders_Tuples_By_First_Component_When_Path_Is_Compound(t *testing.T) {
	t.Parallel()

	path := keycodec.Compound("a", "b")

	sorted := [][]any{
		{1, "z"},
		{2, ""},
		{2, "a"},
		{2, "b"},
		{"a", 1},
		{"a", 2},
		{"ab", 0},
	}

	prev := ""

	for i, key := range sorted {
		got, err := keycodec.Encode(key, path)
		if err != nil {
			t.Fatalf("Encode(%v): %v", key, err)
		}

		if !strings.Contains(got, keycodec.Joiner) {
			t.Errorf("Encode(%v) = %q, missing joiner", key, got)
		}

		if i > 0 && got <= prev {
			t.Errorf("Encode(%v) = %q, want > %q", key, got, prev)
		}

		prev = got
	}
}

func Test_Encode_Returns_Error_When_Key_Is_Malformed(t *testing.T) {
	t.Parallel()

	single := keycodec.Single("id")
	compound := keycodec.Compound("a", "b")

	tests := []struct {
		name string
		key  any
		path keycodec.KeyPath
		want error
	}{
		{name: "list for single path", key: []any{1, 2}, path: single, want: keycodec.ErrInvalidKeyShape},
		{name: "typed slice for single path", key: []string{"a"}, path: single, want: keycodec.ErrInvalidKeyShape},
		{name: "scalar for compound path", key: "a", path: compound, want: keycodec.ErrInvalidKeyShape},
		{name: "short tuple", key: []any{1}, path: compound, want: keycodec.ErrInvalidKeyShape},
		{name: "long tuple", key: []any{1, 2, 3}, path: compound, want: keycodec.ErrInvalidKeyShape},
		{name: "nested tuple", key: []any{[]any{1}, 2}, path: compound, want: keycodec.ErrInvalidKeyShape},
		{name: "nil", key: nil, path: single, want: keycodec.ErrUnsupportedKeyType},
		{name: "bool", key: true, path: single, want: keycodec.ErrUnsupportedKeyType},
		{name: "bytes", key: []byte("x"), path: single, want: keycodec.ErrUnsupportedKeyType},
		{name: "map", key: map[string]any{}, path: single, want: keycodec.ErrUnsupportedKeyType},
		{name: "bool component", key: []any{1, false}, path: compound, want: keycodec.ErrUnsupportedKeyType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := keycodec.Encode(tt.key, tt.path)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Encode(%v) error = %v, want %v", tt.key, err, tt.want)
			}
		})
	}
}

func Test_EncodeList_Returns_All_Keys_When_Keys_Are_Valid(t *testing.T) {
	t.Parallel()

	got, err := keycodec.EncodeList([]any{"b", 1}, keycodec.Single("id"))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Cb", "A10241"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("EncodeList mismatch (-want +got):\n%s", diff)
	}

	_, err = keycodec.EncodeList([]any{"b", true}, keycodec.Single("id"))
	if !errors.Is(err, keycodec.ErrUnsupportedKeyType) {
		t.Fatalf("EncodeList error = %v, want ErrUnsupportedKeyType", err)
	}
}

func Test_NormalizeKeys_Distinguishes_Tuple_From_List_When_Path_Is_Compound(t *testing.T) {
	t.Parallel()

	compound := keycodec.Compound("a", "b")
	single := keycodec.Single("id")

	tests := []struct {
		name string
		in   any
		path keycodec.KeyPath
		want []any
	}{
		{name: "scalar", in: "x", path: single, want: []any{"x"}},
		{name: "list of scalars", in: []any{"x", "y"}, path: single, want: []any{"x", "y"}},
		{name: "one tuple", in: []any{1, 2}, path: compound, want: []any{[]any{1, 2}}},
		{name: "list of tuples", in: []any{[]any{1, 2}, []any{3, 4}}, path: compound, want: []any{[]any{1, 2}, []any{3, 4}}},
	}

	for _, tt := range tests {
		got := keycodec.NormalizeKeys(tt.in, tt.path)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: NormalizeKeys mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func Test_Encode_Uses_Epoch_Millis_When_Key_Is_Date(t *testing.T) {
	t.Parallel()

	d := time.UnixMilli(1_700_000_000_000)

	got, err := keycodec.EncodeValue(d)
	if err != nil {
		t.Fatal(err)
	}

	want := "B" + keycodec.EncodeNumber(1_700_000_000_000)
	if got != want {
		t.Fatalf("EncodeValue(date) = %q, want %q", got, want)
	}
}

func Test_Compare_Orders_Tuple_By_Joiner_When_String_Component_Extends_Another(t *testing.T) {
	t.Parallel()

	path := keycodec.Compound("a", "b")

	// The byte after the shared prefix is compared against the joiner.
	c, err := keycodec.Compare([]any{"a", 1}, []any{"a b", 1}, path)
	if err != nil || c <= 0 {
		t.Fatalf("Compare([a 1], [a b 1]) = %d, %v; want positive", c, err)
	}

	c, err = keycodec.Compare([]any{"a", 1}, []any{"ab", 1}, path)
	if err != nil || c >= 0 {
		t.Fatalf("Compare([a 1], [ab 1]) = %d, %v; want negative", c, err)
	}

	c, err = keycodec.Compare([]any{"a b", 1}, []any{"a b", 1}, path)
	if err != nil || c != 0 {
		t.Fatalf("Compare([a b 1], [a b 1]) = %d, %v; want zero", c, err)
	}
}

func Test_Compare_Reports_Sign_When_Keys_Differ(t *testing.T) {
	t.Parallel()

	path := keycodec.Single("id")

	c, err := keycodec.Compare(-3, 2, path)
	if err != nil || c >= 0 {
		t.Fatalf("Compare(-3, 2) = %d, %v; want negative", c, err)
	}

	c, err = keycodec.Compare("b", 99, path)
	if err != nil || c <= 0 {
		t.Fatalf("Compare(\"b\", 99) = %d, %v; want positive", c, err)
	}
}
