package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("event queue is full")
	// ErrQueueClosed is returned by Push after Close
	ErrQueueClosed = errors.New("event queue is closed")
)

// EventJob is a domain event waiting for the trigger engine
type EventJob struct {
	ID         string
	Priority   domain.NotificationPriority
	EventType  domain.EventType
	Payload    map[string]any
	EnqueuedAt time.Time

	seq   uint64
	index int
}

// rank orders priorities; lower runs first
func rank(p domain.NotificationPriority) int {
	switch p {
	case domain.PriorityUrgent:
		return 0
	case domain.PriorityHigh:
		return 1
	case domain.PriorityLow:
		return 3
	default:
		return 2
	}
}

// eventJobHeap implements heap.Interface
type eventJobHeap []*EventJob

func (h eventJobHeap) Len() int { return len(h) }

func (h eventJobHeap) Less(i, j int) bool {
	ri, rj := rank(h[i].Priority), rank(h[j].Priority)
	if ri != rj {
		return ri < rj
	}
	// FIFO within a priority
	return h[i].seq < h[j].seq
}

func (h eventJobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventJobHeap) Push(x interface{}) {
	job := x.(*EventJob)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *eventJobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[0 : n-1]
	return job
}

// PriorityQueue is a bounded, thread-safe priority queue of event jobs
type PriorityQueue struct {
	jobs     eventJobHeap
	capacity int
	nextSeq  uint64
	closed   bool
	mu       sync.Mutex
	cond     *sync.Cond
}

// NewPriorityQueue creates a queue holding at most capacity jobs
func NewPriorityQueue(capacity int) *PriorityQueue {
	if capacity < 1 {
		capacity = 1
	}
	pq := &PriorityQueue{
		jobs:     make(eventJobHeap, 0, capacity),
		capacity: capacity,
	}
	pq.cond = sync.NewCond(&pq.mu)
	heap.Init(&pq.jobs)
	return pq
}

// Push adds a job without blocking
func (pq *PriorityQueue) Push(job *EventJob) error {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.closed {
		return ErrQueueClosed
	}
	if pq.jobs.Len() >= pq.capacity {
		return ErrQueueFull
	}

	job.seq = pq.nextSeq
	pq.nextSeq++
	heap.Push(&pq.jobs, job)
	pq.cond.Signal()
	return nil
}

// Pop blocks until a job is available. After Close it drains remaining
// jobs and then returns false.
func (pq *PriorityQueue) Pop() (*EventJob, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	for pq.jobs.Len() == 0 && !pq.closed {
		pq.cond.Wait()
	}
	if pq.jobs.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&pq.jobs).(*EventJob), true
}

// Close stops accepting jobs and wakes every blocked Pop
func (pq *PriorityQueue) Close() {
	pq.mu.Lock()
	pq.closed = true
	pq.mu.Unlock()
	pq.cond.Broadcast()
}

// Len returns the number of jobs in the queue
func (pq *PriorityQueue) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.jobs.Len()
}

// Capacity returns the maximum number of queued jobs
func (pq *PriorityQueue) Capacity() int {
	return pq.capacity
}
