package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(3, 16, zerolog.Nop())
	p.Start()

	var count atomic.Int64
	for i := 0; i < 10; i++ {
		p.Submit(func() error {
			count.Add(1)
			return nil
		})
	}

	require.Eventually(t, func() bool { return count.Load() == 10 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop())
}

func TestPool_StopDrainsQueueFirst(t *testing.T) {
	p := New(1, 16, zerolog.Nop())
	p.Start()

	var ran atomic.Bool
	p.Submit(func() error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, p.Stop())
	assert.True(t, ran.Load())
}
