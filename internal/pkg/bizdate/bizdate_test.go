package bizdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedCalendar_TodayUsesZone(t *testing.T) {
	loc := time.FixedZone("BDT", 6*3600)
	// 20:30 UTC is already the next day at +06:00
	c := Fixed(time.Date(2026, 3, 9, 20, 30, 0, 0, time.UTC).In(loc))
	assert.Equal(t, "2026-03-10", c.Today())
	assert.True(t, c.IsPast("2026-03-09"))
	assert.False(t, c.IsPast("2026-03-10"))
	assert.False(t, c.IsPast("2026-03-11"))
}

func TestNew_UnknownZoneFallsBackToUTC(t *testing.T) {
	c := New("Not/AZone")
	assert.Equal(t, time.UTC, c.Location())
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("2026-10-16"))
	assert.False(t, Valid("2026-1-16"))
	assert.False(t, Valid("2026-02-30"))
	assert.False(t, Valid(""))
}
