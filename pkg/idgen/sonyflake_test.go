package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflakeMonotonic(t *testing.T) {
	g, err := NewSonyflake(7)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 100; i++ {
		id, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestFunc(t *testing.T) {
	n := int64(0)
	g := Func(func() (int64, error) { n++; return n, nil })
	id, err := g.NextID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMachineOf(t *testing.T) {
	g, err := NewSonyflake(42)
	require.NoError(t, err)
	id, err := g.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(42), MachineOf(id))
}
