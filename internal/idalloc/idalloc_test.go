package idalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	values map[string]int64
}

func newMemCounter() *memCounter { return &memCounter{values: make(map[string]int64)} }

func (m *memCounter) NextCounter(name string) (int64, error) {
	m.values[name]++
	return m.values[name], nil
}

func (m *memCounter) SeedCounter(name string, value int64) error {
	if value > m.values[name] {
		m.values[name] = value
	}
	return nil
}

func (m *memCounter) CounterValue(name string) (int64, error) { return m.values[name], nil }

func TestAllocator_StrictlyIncreasing(t *testing.T) {
	a := New(newMemCounter())
	first, err := a.Next()
	require.NoError(t, err)
	second, err := a.Next()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestAllocator_SeedFloorNeverLowers(t *testing.T) {
	counter := newMemCounter()
	a := New(counter)

	require.NoError(t, a.SeedFloor(100))
	next, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(101), next)

	// Seeding below the current value changes nothing.
	require.NoError(t, a.SeedFloor(5))
	next, err = a.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(102), next)
}
