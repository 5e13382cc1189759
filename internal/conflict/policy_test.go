package conflict

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlockingBoundary(t *testing.T) {
	for _, threshold := range []int{0, 30, DefaultRenewalWindowDays} {
		assert.False(t, IsBlocking(threshold, threshold), "exactly at threshold must allow renewal")
		assert.True(t, IsBlocking(threshold+1, threshold))
		assert.False(t, IsBlocking(threshold-1, threshold))
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		validUntil time.Time
		want       int
	}{
		{name: "whole days", validUntil: now.AddDate(0, 0, 70), want: 70},
		{name: "partial day rounds up", validUntil: now.Add(60*24*time.Hour + time.Hour), want: 61},
		{name: "less than a day", validUntil: now.Add(time.Minute), want: 1},
		{name: "now", validUntil: now, want: 0},
		{name: "past", validUntil: now.AddDate(0, 0, -3), want: -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysRemaining(tt.validUntil, now))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyPlate, s)

	s, err = ParseStrategy(" Composition ")
	require.NoError(t, err)
	assert.Equal(t, StrategyComposition, s)

	_, err = ParseStrategy("fuzzy")
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Equal(t, DefaultRenewalWindowDays, DefaultPolicy().ThresholdDays)

	assert.ErrorIs(t, Policy{Strategy: StrategyPlate, ThresholdDays: -1}.Validate(), ErrInvalidPolicy)
	assert.ErrorIs(t, Policy{Strategy: "other", ThresholdDays: 30}.Validate(), ErrInvalidPolicy)
}
