package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestFanOut(t *testing.T) {
	src := make(chan int)
	b := New[int]("test", "fanout", src)
	defer b.Close()

	l1 := b.Subscribe()
	l2 := b.Subscribe()

	go func() { src <- 42 }()
	assert.Equal(t, 42, recv(t, l1))
	assert.Equal(t, 42, recv(t, l2))
}

func TestSlowListenerIsSkipped(t *testing.T) {
	src := make(chan int)
	b := New("test", "slow", src, WithSendTimeout[int](5*time.Millisecond))
	defer b.Close()

	b.Subscribe() // never read
	fast := b.Subscribe()

	go func() {
		src <- 1
		src <- 2
	}()
	assert.Equal(t, 1, recv(t, fast))
	assert.Equal(t, 2, recv(t, fast))

	s := b.(*server[int])
	assert.Eventually(t, func() bool { return s.numSkip.Load() == 2 }, time.Second, time.Millisecond)
}

func TestCancelSubscription(t *testing.T) {
	src := make(chan string)
	b := New[string]("test", "cancel", src)
	defer b.Close()

	l := b.Subscribe()
	b.CancelSubscription(l)

	_, ok := <-l
	assert.False(t, ok)
}

func TestCloseClosesListeners(t *testing.T) {
	src := make(chan int)
	b := New[int]("test", "close", src)
	l := b.Subscribe()
	b.Close()

	_, ok := <-l
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	b.CancelSubscription(late)
}

func TestSourceCloseStopsServer(t *testing.T) {
	src := make(chan int)
	b := New[int]("test", "srcclose", src)
	l := b.Subscribe()
	close(src)

	_, ok := <-l
	assert.False(t, ok)
	b.Close()
}
