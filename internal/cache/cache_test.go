package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("a", "b"), Key("b", "a"))
	assert.NotEqual(t, Key("ab"), Key("a", "b"), "parts are delimited, not concatenated")
	assert.Len(t, Key("anything"), 64)
}

func TestCache_GetPut(t *testing.T) {
	c := New(0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("k", "cached")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "cached", got)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(time.Millisecond)
	c.Put("k", "short lived")

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}
