package idxdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

func encodeNum(t *testing.T, n float64) string {
	t.Helper()

	enc, err := keycodec.EncodeValue(n)
	require.NoError(t, err)

	return enc
}

func Test_EncodedRange_Contains_Honors_Exclusivity(t *testing.T) {
	t.Parallel()

	path := idxdb.Single("n")

	tests := []struct {
		name string
		r    idxdb.KeyRange
		in   []float64
		out  []float64
	}{
		{"closed", idxdb.Bound(2, 4, false, false), []float64{2, 3, 4}, []float64{1, 5}},
		{"half-open", idxdb.Bound(2, 4, false, true), []float64{2, 3}, []float64{4}},
		{"open low", idxdb.Bound(2, 4, true, false), []float64{3, 4}, []float64{2}},
		{"lower only", idxdb.LowerBound(-1, true), []float64{0, 100}, []float64{-1, -2}},
		{"upper only", idxdb.UpperBound(-1, false), []float64{-1, -50}, []float64{0}},
		{"only", idxdb.Only(7), []float64{7}, []float64{6, 8}},
		{"everything", idxdb.KeyRange{}, []float64{-1e300, 0, 1e300}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			er, err := tt.r.Encode(path)
			require.NoError(t, err)

			for _, n := range tt.in {
				require.True(t, er.Contains(encodeNum(t, n)), "%v should be in %s", n, tt.r)
			}

			for _, n := range tt.out {
				require.False(t, er.Contains(encodeNum(t, n)), "%v should not be in %s", n, tt.r)
			}
		})
	}
}

func Test_EncodedRange_Empty_When_Bounds_Cross_Or_Touch_Exclusively(t *testing.T) {
	t.Parallel()

	path := idxdb.Single("n")

	tests := []struct {
		r     idxdb.KeyRange
		empty bool
	}{
		{idxdb.Bound(4, 2, false, false), true},
		{idxdb.Bound(3, 3, true, false), true},
		{idxdb.Bound(3, 3, false, true), true},
		{idxdb.Bound(3, 3, false, false), false},
		{idxdb.LowerBound(3, true), false},
		{idxdb.KeyRange{}, false},
	}

	for _, tt := range tests {
		er, err := tt.r.Encode(path)
		require.NoError(t, err)
		require.Equal(t, tt.empty, er.Empty(), tt.r.String())
	}
}

func Test_KeyRange_Encode_Fails_When_Bound_Invalid(t *testing.T) {
	t.Parallel()

	_, err := idxdb.Only(nil).Encode(idxdb.Single("n"))
	require.ErrorIs(t, err, idxdb.ErrInvalidKeyShape)

	_, err = idxdb.Bound(1, true, false, false).Encode(idxdb.Single("n"))
	require.ErrorIs(t, err, idxdb.ErrUnsupportedKeyType)
	require.ErrorContains(t, err, "upper bound")

	_, err = idxdb.LowerBound("a", false).Encode(idxdb.Compound("a", "b"))
	require.ErrorIs(t, err, idxdb.ErrInvalidKeyShape)
	require.ErrorContains(t, err, "lower bound")
}

func Test_KeyRange_String_Uses_Interval_Notation(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[2, 4)", idxdb.Bound(2, 4, false, true).String())
	require.Equal(t, "(2, +inf)", idxdb.LowerBound(2, true).String())
	require.Equal(t, "(-inf, a]", idxdb.UpperBound("a", false).String())
	require.Equal(t, "[x, x]", idxdb.Only("x").String())
}

func Test_QueryOptions_Validate_Rejects_Negative_Values(t *testing.T) {
	t.Parallel()

	require.NoError(t, idxdb.QueryOptions{}.Validate())
	require.NoError(t, idxdb.QueryOptions{Limit: 5, Offset: 2, Reverse: true}.Validate())
	require.ErrorIs(t, idxdb.QueryOptions{Limit: -1}.Validate(), idxdb.ErrInvalidInput)
	require.ErrorIs(t, idxdb.QueryOptions{Offset: -3}.Validate(), idxdb.ErrInvalidInput)
}

func Test_ParseResolution_Accepts_Any_Case(t *testing.T) {
	t.Parallel()

	res, err := idxdb.ParseResolution("AND")
	require.NoError(t, err)
	require.Equal(t, idxdb.ResolveAnd, res)

	res, err = idxdb.ParseResolution("or")
	require.NoError(t, err)
	require.Equal(t, idxdb.ResolveOr, res)
	require.Equal(t, "or", res.String())

	_, err = idxdb.ParseResolution("xor")
	require.ErrorIs(t, err, idxdb.ErrInvalidInput)
	require.Equal(t, "Resolution(9)", idxdb.Resolution(9).String())
}
