package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess(t *testing.T) {
	d := New(time.Minute, 10)
	assert.True(t, d.ShouldProcess("a"))
	assert.False(t, d.ShouldProcess("a"))
	assert.True(t, d.ShouldProcess("b"))
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := New(time.Minute, 10)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("a"))
	now = now.Add(30 * time.Second)
	assert.False(t, d.ShouldProcess("a"))
	now = now.Add(31 * time.Second)
	assert.True(t, d.ShouldProcess("a"))
}

func TestBoundedSize(t *testing.T) {
	d := New(time.Hour, 3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		assert.True(t, d.ShouldProcess(id))
	}
	assert.LessOrEqual(t, d.Len(), 3)

	d.Reset()
	assert.Zero(t, d.Len())
}
