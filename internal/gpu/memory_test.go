package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_BufferLifecycle(t *testing.T) {
	m := NewMemory()
	h, err := m.CreateBuffer(16, UsageVertex)
	require.NoError(t, err)
	assert.Equal(t, 1, m.BufferCount())

	require.NoError(t, m.UpdateBuffer(h, 4, []byte{1, 2, 3}))
	data, err := m.Read(h, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 0}, data)

	err = m.UpdateBuffer(h, 14, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrOutOfRange), "Запись за пределы буфера должна отклоняться")

	m.DestroyBuffer(h)
	assert.Equal(t, 0, m.BufferCount())
	assert.ErrorIs(t, m.UpdateBuffer(h, 0, []byte{1}), ErrInvalidHandle)
}

func TestMemory_Frames(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, uint64(0), m.FrameIndex())

	m.Draw(1, 6, 0)
	m.Draw(1, 12, 6)
	draws := m.EndFrame()
	require.Len(t, draws, 2)
	assert.Equal(t, 12, draws[1].VertexCount)
	assert.Equal(t, uint64(0), draws[1].Frame)
	assert.Equal(t, uint64(1), m.FrameIndex())
	assert.Empty(t, m.EndFrame())
}

func TestMemory_FailCreate(t *testing.T) {
	m := NewMemory()
	boom := errors.New("нет памяти")
	m.FailCreate = func(size int) error { return boom }

	_, err := m.CreateBuffer(8, UsageVertex)
	assert.ErrorIs(t, err, boom)

	m.WaitIdle()
	assert.Equal(t, 1, m.WaitIdleCalls())
}
