package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvance(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.Now())

	f.Advance(20 * time.Minute)
	require.Equal(t, time.Date(2026, 1, 1, 0, 20, 0, 0, time.UTC), f.Now())
}

func TestRealReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	after := time.Now()
	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}
