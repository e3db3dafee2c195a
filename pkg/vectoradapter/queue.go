package vectoradapter

import (
	"context"
	"sync"
	"time"
)

// upsertJob is one pending write in the batch queue.
type upsertJob struct {
	collection string
	id         string
	text       string
	metadata   map[string]string
}

// batchQueue amortizes embedding cost by batching writes with a bounded
// size and a flush interval, draining on Close (spec §4.2).
type batchQueue struct {
	adapter *Adapter
	size    int
	period  time.Duration

	mu      sync.Mutex
	pending []upsertJob

	flush chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

func newBatchQueue(a *Adapter, size int, period time.Duration) *batchQueue {
	if size <= 0 {
		size = 32
	}
	if period <= 0 {
		period = time.Second
	}
	q := &batchQueue{
		adapter: a,
		size:    size,
		period:  period,
		flush:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *batchQueue) enqueue(job upsertJob) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	full := len(q.pending) >= q.size
	q.mu.Unlock()

	if full {
		select {
		case q.flush <- struct{}{}:
		default:
		}
	}
}

func (q *batchQueue) run() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.flushPending()
		case <-q.flush:
			q.flushPending()
		case <-q.done:
			q.flushPending()
			return
		}
	}
}

func (q *batchQueue) flushPending() {
	q.mu.Lock()
	jobs := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(jobs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, j := range jobs {
		if err := q.adapter.upsertOne(ctx, j.collection, j.id, j.text, j.metadata); err != nil {
			q.adapter.log.Warn("vector upsert failed", "collection", j.collection, "id", j.id, "error", err)
		}
	}
}

// drainAndStop flushes remaining jobs and stops the background goroutine.
func (q *batchQueue) drainAndStop() {
	close(q.done)
	q.wg.Wait()
}
