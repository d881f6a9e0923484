package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bareClient() *Client {
	return &Client{
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

func TestRegistry_bindAndPush(t *testing.T) {
	r := NewRegistry()
	c := bareClient()

	assert.False(t, r.Push("tok", "ev"), "push to unbound token misses")

	r.Bind("tok", c)
	assert.True(t, r.Push("tok", "ev"))
	assert.Equal(t, "ev", <-c.send)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_rebindReplacesHandle(t *testing.T) {
	r := NewRegistry()
	old, replacement := bareClient(), bareClient()

	r.Bind("tok", old)
	r.Bind("tok", replacement)

	assert.True(t, r.Push("tok", "ev"))
	assert.Empty(t, old.send, "orphaned connection receives no pushes")
	assert.Equal(t, "ev", <-replacement.send)
}

func TestRegistry_unbind(t *testing.T) {
	r := NewRegistry()
	c := bareClient()

	c.bind("tok", "+375000")
	r.Bind("tok", c)

	r.Unbind(c)
	assert.False(t, r.Push("tok", "ev"))
	assert.Equal(t, 0, r.Size())

	// Unbinding a connection that never registered is a no-op.
	r.Unbind(bareClient())
}

func TestRegistry_staleUnbindKeepsSuccessor(t *testing.T) {
	r := NewRegistry()
	old, replacement := bareClient(), bareClient()

	old.bind("tok", "+375000")
	r.Bind("tok", old)
	replacement.bind("tok", "+375000")
	r.Bind("tok", replacement)

	// The orphaned connection closing naturally must not evict the live one.
	r.Unbind(old)
	assert.Equal(t, 1, r.Size())
	assert.True(t, r.Push("tok", "ev"))
	assert.Equal(t, "ev", <-replacement.send)
}

func TestPush_neverBlocks(t *testing.T) {
	r := NewRegistry()
	c := bareClient()
	r.Bind("tok", c)

	for i := 0; i < sendBuffer; i++ {
		assert.True(t, r.Push("tok", i))
	}
	assert.False(t, r.Push("tok", "overflow"), "full buffer reports a miss instead of blocking")

	closed := bareClient()
	r.Bind("tok2", closed)
	close(closed.done)
	assert.False(t, r.Push("tok2", "ev"), "closed connection reports a miss")
}
