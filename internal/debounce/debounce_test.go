package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type calls struct {
	mu   sync.Mutex
	vals []string
}

func (c *calls) add(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals = append(c.vals, v)
}

func (c *calls) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.vals...)
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var c calls
	d := New(30*time.Millisecond, c.add)
	defer d.Stop()

	for _, q := range []string{"h", "he", "hel", "hell", "hello"} {
		d.Call(q)
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return len(c.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello"}, c.get())
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var c calls
	d := New(10*time.Millisecond, c.add)
	defer d.Stop()

	d.Call("a")
	assert.Eventually(t, func() bool { return len(c.get()) == 1 }, time.Second, 2*time.Millisecond)
	d.Call("b")
	assert.Eventually(t, func() bool { return len(c.get()) == 2 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, c.get())
}

func TestDebouncer_Flush(t *testing.T) {
	var c calls
	d := New(time.Hour, c.add)
	defer d.Stop()

	assert.False(t, d.Flush())

	d.Call("x")
	d.Call("y")
	assert.True(t, d.Flush())
	assert.Equal(t, []string{"y"}, c.get())
	assert.False(t, d.Pending())
	assert.False(t, d.Flush())
}

func TestDebouncer_Cancel(t *testing.T) {
	var c calls
	d := New(10*time.Millisecond, c.add)
	defer d.Stop()

	d.Call("dropped")
	d.Cancel()
	assert.False(t, d.Pending())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, c.get())
}

func TestDebouncer_StopIgnoresLaterCalls(t *testing.T) {
	var c calls
	d := New(5*time.Millisecond, c.add)

	d.Call("before")
	d.Stop()
	d.Call("after")

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, c.get())
	assert.False(t, d.Flush())
}

func TestNew_DefaultDelay(t *testing.T) {
	d := New(0, func(int) {})
	assert.Equal(t, DefaultDelay, d.delay)
}
