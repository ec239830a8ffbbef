package secrets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache[FeedCredentials](time.Minute)

	c.Put("feed", FeedCredentials{APIKey: "k", APISecret: "s"})

	got, ok := c.Get("feed")
	require.True(t, ok)
	assert.Equal(t, "k", got.APIKey)
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	c := NewCache[FeedCredentials](time.Minute)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestCache_ExpiredEntryEvicted(t *testing.T) {
	c := NewCache[string](-time.Second) // already expired on insert

	c.Put("k", "v")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_BustRemovesEntry(t *testing.T) {
	c := NewCache[string](time.Minute)

	c.Put("k", "v")
	c.Bust("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}
