package containers

import "errors"

var ErrQueueEmpty = errors.New("queue is empty")

// RingQueue is a growable FIFO over a circular buffer. The renderer uses it
// for the pending-destruction queue, where entries are enqueued in frame
// order and dequeued from the front once old enough.
type RingQueue[T any] struct {
	data       []T
	readIndex  int
	writeIndex int
	count      int
}

// NewRingQueue creates a queue with the given initial capacity.
func NewRingQueue[T any](capacity int) *RingQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingQueue[T]{
		data: make([]T, capacity),
	}
}

// Enqueue adds an element to the back of the queue, growing the buffer
// when full.
func (rq *RingQueue[T]) Enqueue(value T) {
	if rq.count == len(rq.data) {
		rq.grow()
	}
	rq.data[rq.writeIndex] = value
	rq.writeIndex = (rq.writeIndex + 1) % len(rq.data)
	rq.count++
}

// Dequeue removes and returns the front element of the queue.
func (rq *RingQueue[T]) Dequeue() (T, error) {
	var zero T
	if rq.count == 0 {
		return zero, ErrQueueEmpty
	}
	value := rq.data[rq.readIndex]
	rq.data[rq.readIndex] = zero
	rq.readIndex = (rq.readIndex + 1) % len(rq.data)
	rq.count--
	return value, nil
}

// Peek returns the front element without removing it.
func (rq *RingQueue[T]) Peek() (T, error) {
	var zero T
	if rq.count == 0 {
		return zero, ErrQueueEmpty
	}
	return rq.data[rq.readIndex], nil
}

func (rq *RingQueue[T]) Len() int {
	return rq.count
}

func (rq *RingQueue[T]) IsEmpty() bool {
	return rq.count == 0
}

func (rq *RingQueue[T]) grow() {
	grown := make([]T, len(rq.data)*2)
	for i := 0; i < rq.count; i++ {
		grown[i] = rq.data[(rq.readIndex+i)%len(rq.data)]
	}
	rq.data = grown
	rq.readIndex = 0
	rq.writeIndex = rq.count
}
