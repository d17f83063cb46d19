package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffered_SendReceive(t *testing.T) {
	c := NewBuffered[int](2)

	assert.True(t, c.Send(1))
	assert.True(t, c.TrySend(2))
	assert.False(t, c.TrySend(3), "full buffer rejects non-blocking send")
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, <-c.Receive())
	assert.Equal(t, 2, <-c.Receive())
}

func TestBuffered_CloseIsIdempotent(t *testing.T) {
	c := NewBuffered[string](1)
	c.Close()
	c.Close()

	assert.False(t, c.Send("x"))
	assert.False(t, c.TrySend("x"))

	_, ok := <-c.Receive()
	assert.False(t, ok)
}

func TestUnbuffered_TrySendWithoutReceiver(t *testing.T) {
	c := NewUnbuffered[int]()
	assert.False(t, c.TrySend(1))
	assert.Equal(t, 0, c.Len())

	done := make(chan int)
	go func() { done <- <-c.Receive() }()
	assert.True(t, c.Send(7))
	assert.Equal(t, 7, <-done)

	c.Close()
	c.Close()
	assert.False(t, c.Send(1))
}

func TestNew_ReturnsUsableChannel(t *testing.T) {
	c := New[int](4)
	defer c.Close()

	go c.Send(5)
	assert.Equal(t, 5, <-c.Receive())
}
