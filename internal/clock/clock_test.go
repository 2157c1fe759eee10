package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClocks(t *testing.T) {
	t.Run("SystemIsUTC", func(t *testing.T) {
		assert.Equal(t, time.UTC, NewSystem().Now().Location())
	})

	t.Run("Fixed", func(t *testing.T) {
		at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
		c := NewFixed(at)
		assert.True(t, c.Now().Equal(at))
		assert.Equal(t, c.Now(), c.Now())
	})

	t.Run("ManualAdvance", func(t *testing.T) {
		start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		m := NewManual(start)
		assert.Equal(t, start.Add(time.Minute), m.Advance(time.Minute))
		assert.Equal(t, start.Add(time.Minute), m.Now())

		m.Set(start)
		assert.Equal(t, start, m.Now())
	})
}
