package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"interactive-maps/pkg/models"
)

// --- Priority Queue Implementation ---

// pqItem represents an item in the priority queue
type pqItem struct {
	job      *models.TilingJob
	priority int    // Lower value means higher priority
	seq      uint64 // Enqueue sequence, keeps FIFO order within one priority
	index    int    // The index of the item in the heap (required by heap interface)
}

// priorityHeap implements heap.Interface
type priorityHeap []*pqItem

func (pq priorityHeap) Len() int { return len(pq) }

func (pq priorityHeap) Less(i, j int) bool {
	// Pop should return the item with the smallest priority value; ties go to
	// the earliest enqueued job so same-priority batches stay FIFO
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityHeap) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *priorityHeap) Push(x any) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the highest priority element (minimum value) from the heap
func (pq *priorityHeap) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// jobQueue wraps priorityHeap with concurrency controls. One jobQueue exists
// per job type so fetch and tile workers never starve each other.
type jobQueue struct {
	pq     priorityHeap
	mu     sync.Mutex
	cond   *sync.Cond // Condition variable to wait for items
	closed bool
	seq    uint64
	log    *logrus.Logger
}

// newJobQueue creates a new thread-safe job queue
func newJobQueue(logger *logrus.Logger) *jobQueue {
	jq := &jobQueue{log: logger}
	jq.cond = sync.NewCond(&jq.mu)
	heap.Init(&jq.pq)
	return jq
}

// add pushes a job onto the queue ordered by its dispatch priority
func (jq *jobQueue) add(job *models.TilingJob) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.closed {
		jq.log.Warnf("Attempted to add job to closed queue: %s", job.ID)
		return
	}

	jq.seq++
	item := &pqItem{
		job:      job,
		priority: int(job.Priority),
		seq:      jq.seq,
	}
	heap.Push(&jq.pq, item)
	jq.cond.Signal() // Signal one waiting worker that a job is available
}

// pop retrieves and removes the highest priority job.
// It blocks if the queue is empty until a job is added or the queue is closed.
// Returns the job and true, or nil and false if the queue is closed and empty.
func (jq *jobQueue) pop() (*models.TilingJob, bool) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	// Wait while the queue is empty AND not closed
	for len(jq.pq) == 0 {
		if jq.closed {
			return nil, false // Queue closed and empty, signal worker to exit
		}
		// Wait releases the lock and waits for a Signal/Broadcast; reacquires lock upon waking
		jq.cond.Wait()
	}

	item := heap.Pop(&jq.pq).(*pqItem)
	return item.job, true
}

// close signals that no more jobs will be added to the queue
func (jq *jobQueue) close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()
	if !jq.closed {
		jq.closed = true
		jq.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// len returns the current number of queued jobs (thread-safe)
func (jq *jobQueue) len() int {
	jq.mu.Lock()
	defer jq.mu.Unlock()
	return len(jq.pq)
}
