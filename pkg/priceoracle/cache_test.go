package priceoracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_MissThenSet(t *testing.T) {
	c := newCache[int](time.Minute)
	now := time.Now()

	_, found, fresh := c.get("a", now)
	assert.False(t, found)
	assert.False(t, fresh)

	c.set("a", 42, now)
	entry, found, fresh := c.get("a", now)
	assert.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, 42, entry.Value)
}

func TestCache_StaleStillReturnsEntry(t *testing.T) {
	c := newCache[int](time.Minute)
	now := time.Now()
	c.set("a", 7, now)

	later := now.Add(2 * time.Minute)
	entry, found, fresh := c.get("a", later)
	assert.True(t, found)
	assert.False(t, fresh)
	assert.Equal(t, 7, entry.Value)
}

func TestCache_OverwriteRefreshesExpiry(t *testing.T) {
	c := newCache[int](time.Minute)
	now := time.Now()
	c.set("a", 1, now)
	c.set("a", 2, now.Add(30*time.Second))

	entry, found, fresh := c.get("a", now.Add(45*time.Second))
	assert.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, 2, entry.Value)
}
