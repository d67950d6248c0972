package containers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	for i := 0; i < 4; i++ {
		rq.Enqueue(i)
	}
	require.Equal(t, 4, rq.Len())

	for i := 0; i < 4; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.True(t, rq.IsEmpty())

	_, err := rq.Dequeue()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueGrowsPreservingOrder(t *testing.T) {
	rq := NewRingQueue[int](2)

	// Force wrap-around before growth.
	rq.Enqueue(0)
	rq.Enqueue(1)
	v, err := rq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, 0, v)

	for i := 2; i < 10; i++ {
		rq.Enqueue(i)
	}
	require.Equal(t, 9, rq.Len())

	for i := 1; i < 10; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestRingQueuePeek(t *testing.T) {
	rq := NewRingQueue[string](1)
	_, err := rq.Peek()
	require.ErrorIs(t, err, ErrQueueEmpty)

	rq.Enqueue("front")
	rq.Enqueue("back")

	v, err := rq.Peek()
	require.NoError(t, err)
	require.Equal(t, "front", v)
	require.Equal(t, 2, rq.Len())
}
