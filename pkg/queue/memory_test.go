package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue[int](8)
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	assert.Equal(t, 5, q.Size())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, q.ReadAllMessages())
	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.ReadAllMessages())
}

func TestInMemoryQueue_Full(t *testing.T) {
	q := NewInMemoryQueue[string](2)
	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))

	assert.ErrorIs(t, q.Enqueue("c"), ErrQueueFull)
	assert.Equal(t, []string{"a", "b"}, q.ReadAllMessages())
}

func TestInMemoryQueue_ClearQueue(t *testing.T) {
	q := NewInMemoryQueue[int](0)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(i))
	}

	q.ClearQueue()
	assert.Equal(t, 0, q.Size())
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue[int](1000)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Enqueue(i)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.ReadAllMessages(), 400)
}
