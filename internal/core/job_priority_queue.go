package core

import (
	"container/heap"
	"time"
)

// pqItem is one entry in the job priority queue.
type pqItem struct {
	job          TargetURLJob
	priorityTime time.Time // NextAttemptAt of the job
	index        int
}

// JobPriorityQueue implements heap.Interface ordered by NextAttemptAt.
// The scheduler parks jobs here while their domain is paced, throttled, or
// busy with another timing check.
type JobPriorityQueue []*pqItem

func (pq JobPriorityQueue) Len() int { return len(pq) }

func (pq JobPriorityQueue) Less(i, j int) bool {
	return pq[i].priorityTime.Before(pq[j].priorityTime)
}

func (pq JobPriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an item to the heap. Use AddJob instead of calling this directly.
func (pq *JobPriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the item with the earliest NextAttemptAt.
func (pq *JobPriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// NewJobPriorityQueue creates an empty JobPriorityQueue.
func NewJobPriorityQueue(capacity int) *JobPriorityQueue {
	pq := make(JobPriorityQueue, 0, capacity)
	heap.Init(&pq)
	return &pq
}

// AddJob inserts a TargetURLJob keyed by its NextAttemptAt.
func (pq *JobPriorityQueue) AddJob(job TargetURLJob) {
	heap.Push(pq, &pqItem{job: job, priorityTime: job.NextAttemptAt})
}

// GetNextJobIfReady pops the earliest job if its NextAttemptAt has passed.
// Returns nil, false when the queue is empty or no job is due yet.
func (pq *JobPriorityQueue) GetNextJobIfReady() (*TargetURLJob, bool) {
	if pq.Len() == 0 {
		return nil, false
	}
	next := (*pq)[0]
	if !time.Now().Before(next.priorityTime) {
		item := heap.Pop(pq).(*pqItem)
		return &item.job, true
	}
	return nil, false
}

// PeekNextTime returns the NextAttemptAt of the earliest job without
// removing it. Returns time.Time{}, false when the queue is empty.
func (pq *JobPriorityQueue) PeekNextTime() (time.Time, bool) {
	if pq.Len() == 0 {
		return time.Time{}, false
	}
	return (*pq)[0].priorityTime, true
}
