package settle

import (
	"hash/fnv"
	"sync"
)

// taskQueue runs submitted tasks on a fixed pool of workers. Tasks with
// the same key always land on the same worker, so ledger mutations for
// one account run strictly in submission order while different accounts
// proceed in parallel.
type taskQueue struct {
	workers []chan func()
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newTaskQueue(workers, depth int) *taskQueue {
	q := &taskQueue{
		workers: make([]chan func(), workers),
	}
	for i := range q.workers {
		ch := make(chan func(), depth)
		q.workers[i] = ch
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range ch {
				task()
			}
		}()
	}
	return q
}

// Submit queues one task on the partition its key hashes to. Returns
// false after Stop.
func (q *taskQueue) Submit(key string, task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	q.workers[h.Sum32()%uint32(len(q.workers))] <- task
	return true
}

// Stop drains the queue: already-submitted tasks complete, new submits
// are refused, and Stop returns when every worker has exited.
func (q *taskQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	for _, ch := range q.workers {
		close(ch)
	}
	q.wg.Wait()
}
