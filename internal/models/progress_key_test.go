package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/activity"
)

func TestProgressKeyRoundTrip(t *testing.T) {
	key := ProgressKey{StudentID: 7, PlanID: 3, DayIndex: 2, ActivityType: activity.TypeSequence}
	require.Equal(t, "7.3.2.sequence", key.String())

	parsed, err := ParseProgressKey(key.String())
	require.NoError(t, err)
	require.Equal(t, key, parsed)
}

func TestParseProgressKeyRejectsMalformedKeys(t *testing.T) {
	for _, raw := range []string{
		"",
		"7.3.2",
		"x.3.2.sequence",
		"7.0.2.sequence",
		"7.3.9.sequence",
		"7.3.2.summary",
		"7.3.1.sequence",
	} {
		_, err := ParseProgressKey(raw)
		require.ErrorIs(t, err, ErrInvalidProgressKey, raw)
	}
}

func TestActivityContentFreshness(t *testing.T) {
	now := mustTime(t, "2026-01-02T10:00:00Z")
	later := now.Add(1)
	earlier := now.Add(-1)

	row := ActivityContent{ContentHash: "abc"}
	require.True(t, row.IsFresh("abc", now))
	require.False(t, row.IsFresh("def", now))

	row.ExpiresAt = &later
	require.True(t, row.IsFresh("abc", now))
	row.ExpiresAt = &earlier
	require.False(t, row.IsFresh("abc", now))
	row.ExpiresAt = &now
	require.False(t, row.IsFresh("abc", now))
}

func TestStoryPart(t *testing.T) {
	story := Story{Part1: "one", Part2: "two", Part3: "three"}
	require.Equal(t, "two", story.Part(2))
	require.Empty(t, story.Part(4))
}
