package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(FrequencyDaily, Anchor{}))
	assert.ErrorIs(t, Validate(Frequency("BIWEEKLY"), Anchor{}), ErrInvalidAnchor)
	assert.ErrorIs(t, Validate(FrequencyMonthly, Anchor{DayOfMonth: intPtr(0)}), ErrInvalidAnchor)
	assert.ErrorIs(t, Validate(FrequencyMonthly, Anchor{DayOfMonth: intPtr(32)}), ErrInvalidAnchor)
	assert.ErrorIs(t, Validate(FrequencyWeekly, Anchor{DayOfWeek: intPtr(7)}), ErrInvalidAnchor)
	assert.ErrorIs(t, Validate(FrequencyWeekly, Anchor{DayOfWeek: intPtr(-1)}), ErrInvalidAnchor)
}

func TestAdvanceDaily(t *testing.T) {
	got, err := Advance(FrequencyDaily, date(2024, time.March, 31), Anchor{})
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 1), got)
}

func TestAdvanceWeekly(t *testing.T) {
	// 2024-06-03 is a Monday.
	monday := date(2024, time.June, 3)

	t.Run("same weekday advances a full week", func(t *testing.T) {
		got, err := Advance(FrequencyWeekly, monday, Anchor{DayOfWeek: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, monday.AddDate(0, 0, 7), got)
	})

	t.Run("next matching weekday", func(t *testing.T) {
		got, err := Advance(FrequencyWeekly, monday, Anchor{DayOfWeek: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.June, 7), got) // Friday
	})

	t.Run("defaults to Monday without anchor", func(t *testing.T) {
		got, err := Advance(FrequencyWeekly, date(2024, time.June, 5), Anchor{})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.June, 10), got)
	})
}

func TestAdvanceMonthlyClampsShortMonths(t *testing.T) {
	anchor := Anchor{DayOfMonth: intPtr(31)}

	got, err := Advance(FrequencyMonthly, date(2023, time.January, 31), anchor)
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.February, 28), got, "non-leap February clamps to 28")

	got, err = Advance(FrequencyMonthly, date(2024, time.January, 31), anchor)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), got, "leap February clamps to 29")

	// Recovers back to the anchored day in a long month.
	got, err = Advance(FrequencyMonthly, got, anchor)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 31), got)
}

func TestAdvanceMonthlyDecemberRollsOver(t *testing.T) {
	got, err := Advance(FrequencyMonthly, date(2023, time.December, 15), Anchor{})
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 15), got)
}

func TestAdvanceYearly(t *testing.T) {
	got, err := Advance(FrequencyYearly, date(2023, time.July, 4), Anchor{})
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.July, 4), got)

	// Native date arithmetic: Feb 29 + 1y normalizes to Mar 1.
	got, err = Advance(FrequencyYearly, date(2024, time.February, 29), Anchor{})
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 1), got)
}

func TestAdvanceIsStrictlyAfter(t *testing.T) {
	anchors := []Anchor{
		{},
		{DayOfMonth: intPtr(1)},
		{DayOfMonth: intPtr(31)},
		{DayOfWeek: intPtr(0)},
		{DayOfWeek: intPtr(6)},
	}
	freqs := []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly}

	from := date(2024, time.January, 1)
	for i := 0; i < 400; i++ {
		for _, freq := range freqs {
			for _, anchor := range anchors {
				got, err := Advance(freq, from, anchor)
				require.NoError(t, err)
				assert.True(t, got.After(from), "%s from %s with anchor %+v returned %s", freq, from, anchor, got)
			}
		}
		from = from.AddDate(0, 0, 1)
	}
}

func TestInitialPlacement(t *testing.T) {
	t.Run("weekly adjusts forward to anchored weekday", func(t *testing.T) {
		// 2024-06-03 is a Monday; anchored on Thursday (4).
		got, err := Initial(FrequencyWeekly, date(2024, time.June, 3), Anchor{DayOfWeek: intPtr(4)})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.June, 6), got)
	})

	t.Run("weekly start already on anchor stays put", func(t *testing.T) {
		got, err := Initial(FrequencyWeekly, date(2024, time.June, 3), Anchor{DayOfWeek: intPtr(1)})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.June, 3), got)
	})

	t.Run("monthly never moves backward past start", func(t *testing.T) {
		// Start on the 20th with an anchor on the 5th: next month's 5th,
		// not this month's.
		got, err := Initial(FrequencyMonthly, date(2024, time.June, 20), Anchor{DayOfMonth: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.July, 5), got)
	})

	t.Run("monthly anchor later in month adjusts forward", func(t *testing.T) {
		got, err := Initial(FrequencyMonthly, date(2024, time.June, 2), Anchor{DayOfMonth: intPtr(15)})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.June, 15), got)
	})

	t.Run("monthly December anchor rolls into January", func(t *testing.T) {
		got, err := Initial(FrequencyMonthly, date(2024, time.December, 20), Anchor{DayOfMonth: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, date(2025, time.January, 5), got)
	})

	t.Run("daily and yearly ignore anchors", func(t *testing.T) {
		start := date(2024, time.June, 20)
		got, err := Initial(FrequencyDaily, start, Anchor{DayOfMonth: intPtr(5), DayOfWeek: intPtr(3)})
		require.NoError(t, err)
		assert.Equal(t, start, got)

		got, err = Initial(FrequencyYearly, start, Anchor{DayOfMonth: intPtr(5)})
		require.NoError(t, err)
		assert.Equal(t, start, got)
	})
}
