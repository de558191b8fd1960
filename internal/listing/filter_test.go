package listing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func holderFields() []Field {
	return []Field{
		{Key: "name", Kind: FieldText},
		{Key: "status", Kind: FieldSelect, Options: []string{"active", "breakdown", "in_store"}},
		{Key: "created", Kind: FieldDateRange},
	}
}

func TestApplyRejectsInvertedRange(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("name", Text("pump")))
	_, err := h.Apply()
	require.NoError(t, err)

	require.NoError(t, h.SetField("created", Between(day("2025-01-10"), day("2025-01-01"))))
	changed, err := h.Apply()
	require.False(t, changed)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "created")
	require.Equal(t, Filters{"name": Text("pump")}, h.Applied())
}

func TestApplyAcceptsOpenAndEqualRanges(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("created", Between(day("2025-01-01"), day("2025-01-01"))))
	_, err := h.Apply()
	require.NoError(t, err)

	require.NoError(t, h.SetField("created", Between(time.Time{}, day("2025-01-01"))))
	_, err = h.Apply()
	require.NoError(t, err)

	require.NoError(t, h.SetField("created", Between(day("2025-01-01"), time.Time{})))
	_, err = h.Apply()
	require.NoError(t, err)
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("status", Text("active")))

	changed, err := h.Apply()
	require.NoError(t, err)
	require.True(t, changed)
	first := h.Applied()

	changed, err = h.Apply()
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, first, h.Applied())
}

func TestSetFieldOnlyTouchesDraft(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("name", Text("chiller")))
	require.Empty(t, h.Applied())
	require.Equal(t, Filters{"name": Text("chiller")}, h.Draft())

	require.ErrorIs(t, h.SetField("colour", Text("red")), ErrUnknownField)

	require.NoError(t, h.SetField("name", Text("")))
	require.Empty(t, h.Draft())
}

func TestSelectOptions(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("status", Text("scrapped")))
	_, err := h.Apply()
	require.ErrorIs(t, err, ErrValidation)
}

func TestRequiredField(t *testing.T) {
	h := NewFilterHolder([]Field{{Key: "site", Required: true}}, nil, ResetKeepsApplied)
	_, err := h.Apply()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "is required", verr.Fields["site"])
}

func TestResetPolicies(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC) }
	defaults := TrailingWindow("created", 12, now)

	keep := NewFilterHolder(holderFields(), defaults, ResetKeepsApplied)
	require.NoError(t, keep.SetField("name", Text("lift")))
	_, err := keep.Apply()
	require.NoError(t, err)
	require.False(t, keep.Reset())
	require.Equal(t, defaults(), keep.Draft())
	require.Contains(t, keep.Applied(), "name")

	auto := NewFilterHolder(holderFields(), defaults, ResetApplies)
	require.NoError(t, auto.SetField("name", Text("lift")))
	_, err = auto.Apply()
	require.NoError(t, err)
	require.True(t, auto.Reset())
	require.Equal(t, defaults(), auto.Applied())
	require.False(t, auto.Reset())
}

func TestTrailingWindow(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC) }
	f := TrailingWindow("created", 12, now)()
	require.Equal(t, day("2024-06-15"), f["created"].Range.From)
	require.Equal(t, day("2025-06-15"), f["created"].Range.To)
}

func TestCancelRestoresApplied(t *testing.T) {
	h := NewFilterHolder(holderFields(), nil, ResetKeepsApplied)
	require.NoError(t, h.SetField("name", Text("boiler")))
	_, err := h.Apply()
	require.NoError(t, err)
	require.NoError(t, h.SetField("name", Text("fan")))
	h.Cancel()
	require.Equal(t, h.Applied(), h.Draft())
}
