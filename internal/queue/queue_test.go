package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID   int
	Text string
}

func TestQueue_PushDrain(t *testing.T) {
	q := New[row]()
	assert.True(t, q.Empty())

	q.Push(row{ID: 1}, row{ID: 2})
	q.Push(row{ID: 3})
	assert.Equal(t, 3, q.Len())

	items := q.Drain()
	assert.Equal(t, []row{{ID: 1}, {ID: 2}, {ID: 3}}, items)
	assert.True(t, q.Empty())
	assert.Empty(t, q.Drain())
}

func TestQueue_RequeueKeepsOrder(t *testing.T) {
	q := New[row]()
	q.Push(row{ID: 1}, row{ID: 2})
	failed := q.Drain()

	q.Push(row{ID: 3})
	q.Requeue(failed)
	q.Requeue(nil)

	assert.Equal(t, []row{{ID: 1}, {ID: 2}, {ID: 3}}, q.Drain())
}

func TestQueue_DrainedSliceIsDetached(t *testing.T) {
	q := New[row]()
	q.Push(row{ID: 1})
	items := q.Drain()
	q.Push(row{ID: 2})
	items[0].Text = "changed"

	assert.Equal(t, []row{{ID: 2}}, q.Drain())
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(n*100 + j)
			}
		}(i)
	}

	drained := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			drained += len(q.Drain())
			assert.Equal(t, 1000, drained)
			return
		default:
			drained += len(q.Drain())
		}
	}
}
