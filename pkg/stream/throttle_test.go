package stream

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottler(t *testing.T) {
	t.Run("leading call runs immediately", func(t *testing.T) {
		var calls int32
		th := NewThrottler(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

		th.Trigger()
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.False(t, th.Pending())
	})

	t.Run("burst collapses into one trailing call", func(t *testing.T) {
		var calls int32
		th := NewThrottler(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

		for i := 0; i < 10; i++ {
			th.Trigger()
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only the leading call inside the window")
		assert.True(t, th.Pending())

		assert.Eventually(t, func() bool {
			return atomic.LoadInt32(&calls) == 2
		}, time.Second, 5*time.Millisecond)

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "no extra calls after the trailing flush")
	})

	t.Run("cancel drops the trailing call", func(t *testing.T) {
		var calls int32
		th := NewThrottler(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

		th.Trigger()
		th.Trigger()
		th.Cancel()

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		th.Trigger()
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "trigger after cancel is a leading call")
	})

	t.Run("flush runs the pending call once", func(t *testing.T) {
		var calls int32
		th := NewThrottler(time.Second, func() { atomic.AddInt32(&calls, 1) })

		assert.False(t, th.Flush())
		th.Trigger()
		th.Trigger()
		assert.True(t, th.Flush())
		assert.False(t, th.Flush())
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("zero interval uses the default", func(t *testing.T) {
		th := NewThrottler(0, func() {})
		assert.Equal(t, DefaultFlushInterval, th.interval)
	})
}
