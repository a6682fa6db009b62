package series

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-features/internal/model"
)

func bar(dt any, o, h, l, c, v any) model.RawBar {
	return model.RawBar{Datetime: dt, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// ────────────────────────────────────────────────────────────
// Ordering, de-duplication, invalid bars
// ────────────────────────────────────────────────────────────

func TestNormalize_ShuffledDuplicatesAndInvalid(t *testing.T) {
	raw := []model.RawBar{
		bar("2024-01-03", "10", "11", "9", "10.5", "100"),
		bar("2024-01-01", "10", "11", "9", "10", "100"),
		bar("2024-01-02", "10", "11", "9", "10.2", "100"),
		bar("2024-01-02", "99", "99", "99", "99", "1"), // duplicate, first wins
		bar("2024-01-04", "10", "9", "11", "10", "100"), // high < low
	}

	s, rep, err := Normalize(raw, Options{Symbol: "AAPL", MinBars: 1})
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Time[i].After(s.Time[i-1]), "timestamps must be strictly increasing")
	}
	assert.Equal(t, []float64{10, 10.2, 10.5}, s.Close)
	assert.Equal(t, 1, rep.Dropped[DropDuplicate])
	assert.Equal(t, 1, rep.Dropped[DropInvalidOHLC])
	assert.Equal(t, 5, rep.Input)
	assert.Equal(t, 3, rep.Kept)
	assert.Equal(t, 2, rep.DroppedTotal())
	assert.False(t, rep.Insufficient)
}

func TestNormalize_DropsMissingCloseAndBadTimestamp(t *testing.T) {
	raw := []model.RawBar{
		bar("2024-01-01", 1, 1, 1, nil, 10),
		bar("not a date", 1, 1, 1, 1, 10),
		bar(nil, 1, 1, 1, 1, 10),
		bar("2024-01-02", 1, 1, 1, "N/A", 10),
		bar("2024-01-03", 1, 1, 1, 1, 10),
	}
	s, rep, err := Normalize(raw, Options{Symbol: "X"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, rep.Dropped[DropMissingClose])
	assert.Equal(t, 2, rep.Dropped[DropBadTimestamp])
}

func TestNormalize_ForeignSymbolDropped(t *testing.T) {
	a := bar("2024-01-01", 1, 1, 1, 1, 1)
	a.Symbol = "aapl"
	b := bar("2024-01-02", 1, 1, 1, 1, 1)
	b.Symbol = "MSFT"
	s, rep, err := Normalize([]model.RawBar{a, b}, Options{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, rep.Dropped[DropForeignSymbol])
}

func TestNormalize_InsufficientIsNotAnError(t *testing.T) {
	raw := []model.RawBar{bar("2024-01-01", 1, 1, 1, 1, 1)}
	s, rep, err := Normalize(raw, Options{Symbol: "X", MinBars: 50})
	require.NoError(t, err)
	assert.True(t, rep.Insufficient)
	assert.Equal(t, 1, s.Len())
}

func TestNormalize_ProgrammerErrors(t *testing.T) {
	_, _, err := Normalize(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSymbol)
	_, _, err = Normalize(nil, Options{Symbol: "X", MinBars: -1})
	assert.ErrorIs(t, err, ErrNegativeMinBars)
}

func TestNormalize_SkipOHLCCheck(t *testing.T) {
	raw := []model.RawBar{bar("2024-01-01", 10, 9, 11, 10, 1)}
	s, _, err := Normalize(raw, Options{Symbol: "X", SkipOHLCCheck: true})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

// ────────────────────────────────────────────────────────────
// Volume handling
// ────────────────────────────────────────────────────────────

func TestNormalize_VolumeCapability(t *testing.T) {
	raw := []model.RawBar{
		bar("2024-01-01", 1, 1, 1, 1, nil),
		bar("2024-01-02", 1, 1, 1, 1, ""),
	}
	s, _, err := Normalize(raw, Options{Symbol: "FX"})
	require.NoError(t, err)
	assert.False(t, s.HasVolume())
	assert.True(t, math.IsNaN(s.Volume[0]))

	raw = append(raw, bar("2024-01-03", 1, 1, 1, 1, "-5"), bar("2024-01-04", 1, 1, 1, 1, 7))
	s, _, err = Normalize(raw, Options{Symbol: "FX"})
	require.NoError(t, err)
	assert.True(t, s.HasVolume())
	assert.True(t, math.IsNaN(s.Volume[2]), "negative volume becomes missing")
	assert.Equal(t, 7.0, s.Volume[3])
}

// ────────────────────────────────────────────────────────────
// Coercion
// ────────────────────────────────────────────────────────────

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	cases := map[string]any{
		"rfc3339":      "2024-03-05T14:30:00Z",
		"space":        "2024-03-05 14:30:00",
		"epoch sec":    want.Unix(),
		"epoch ms":     want.UnixMilli(),
		"epoch string": "1709649000",
		"json number":  json.Number("1709649000000"),
		"time":         want,
		"bytes":        []byte("2024-03-05T14:30:00Z"),
	}
	for name, in := range cases {
		got, ok := ParseTimestamp(in)
		assert.True(t, ok, name)
		assert.True(t, got.Equal(want), "%s: expected %v, got %v", name, want, got)
	}

	d, ok := ParseTimestamp("2024-03-05")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	for _, bad := range []any{nil, "", "garbage", -5, math.NaN()} {
		_, ok := ParseTimestamp(bad)
		assert.False(t, ok, "%v", bad)
	}
}

func TestParseTimestamp_BasicDate(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{"20240102", json.Number("20240102"), []byte("20240102")} {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}

	_, ok := ParseTimestamp("20241302")
	assert.False(t, ok, "month 13")
}

func TestParseTimestamp_EpochMillisBefore2001(t *testing.T) {
	want := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{want.UnixMilli(), float64(want.UnixMilli()), json.Number("946684800000"), "946684800000"} {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}

	got, ok := ParseTimestamp(int64(946684800))
	require.True(t, ok)
	assert.Equal(t, want, got, "epoch seconds still read as seconds")
}

func TestParseTimestamp_RejectsOutOfRangeYears(t *testing.T) {
	for _, in := range []any{"9999-01-01", 1e18, int64(math.MaxInt64), "1066-10-14"} {
		_, ok := ParseTimestamp(in)
		assert.False(t, ok, "%v", in)
	}
}

func TestNormalize_BasicDatesAndOldMillis(t *testing.T) {
	raw := []model.RawBar{
		bar("20240103", 10, 11, 9, 10.5, 100),
		bar("20240102", 10, 11, 9, 10.2, 100),
		bar(int64(946684800000), 10, 11, 9, 10.0, 100),
		bar("9999-01-01", 10, 11, 9, 10.0, 100),
	}
	s, rep, err := Normalize(raw, Options{Symbol: "AAA"})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 1, rep.Dropped[DropBadTimestamp])
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), s.Time[0])
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Time[1])
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), s.Time[2])
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, 1.25, ParseNumber("1.25"))
	assert.Equal(t, 1.25, ParseNumber(" 1.25 "))
	assert.Equal(t, 3.0, ParseNumber(3))
	assert.Equal(t, 3.0, ParseNumber(int64(3)))
	assert.Equal(t, 2.5, ParseNumber(json.Number("2.5")))
	assert.Equal(t, 4.0, ParseNumber([]byte("4")))
	for _, bad := range []any{nil, "", "abc", true, math.Inf(1), "NaN", "Inf"} {
		assert.True(t, math.IsNaN(ParseNumber(bad)), "%v", bad)
	}
}

func TestFromBars_RejectsUnordered(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []model.PriceBar{
		{TS: t0.Add(time.Hour), Open: 1, High: 1, Low: 1, Close: 1},
		{TS: t0, Open: 1, High: 1, Low: 1, Close: 1},
	}
	_, err := FromBars("X", bars)
	assert.ErrorIs(t, err, ErrUnordered)
}
