package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCronEveryMinute(t *testing.T) {
	c, err := ParseCron("* * * * *")
	require.NoError(t, err)
	require.True(t, c.Matches(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, c.Matches(time.Date(2026, 6, 15, 13, 37, 0, 0, time.UTC)))
}

func TestParseCronSpecificFields(t *testing.T) {
	c, err := ParseCron("30 9 1 * *")
	require.NoError(t, err)
	require.True(t, c.Matches(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))
	require.False(t, c.Matches(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)))
	require.False(t, c.Matches(time.Date(2026, 3, 1, 9, 31, 0, 0, time.UTC)))
}

func TestParseCronStepAndRange(t *testing.T) {
	c, err := ParseCron("*/15 9-17 * * 1-5")
	require.NoError(t, err)
	// Wednesday 2026-07-29 is within the weekday range.
	require.True(t, c.Matches(time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC)))
	require.False(t, c.Matches(time.Date(2026, 7, 29, 10, 20, 0, 0, time.UTC)))
	require.False(t, c.Matches(time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)))
}

func TestParseCronSundayAliases(t *testing.T) {
	c, err := ParseCron("0 0 * * 0")
	require.NoError(t, err)
	c7, err := ParseCron("0 0 * * 7")
	require.NoError(t, err)
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC) // a Sunday
	require.True(t, c.Matches(sunday))
	require.True(t, c7.Matches(sunday))
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("* * * *")
	require.Error(t, err)
}

func TestParseCronRejectsOutOfRange(t *testing.T) {
	_, err := ParseCron("60 * * * *")
	require.Error(t, err)
}

func TestCronNextAfterFindsNextOccurrence(t *testing.T) {
	c, err := ParseCron("0 0 * * *") // midnight daily
	require.NoError(t, err)
	after := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	next, err := c.NextAfter(after)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), next)
}

func TestCronNextAfterIsStrictlyAfter(t *testing.T) {
	c, err := ParseCron("0 0 * * *")
	require.NoError(t, err)
	exact := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	next, err := c.NextAfter(exact)
	require.NoError(t, err)
	require.True(t, next.After(exact))
	require.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), next)
}
