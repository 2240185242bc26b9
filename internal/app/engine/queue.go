package engine

import "sync"

// jobQueue runs funcs one at a time in push order on its own goroutine.
// Jobs may be pushed before start; they wait until it runs.
type jobQueue struct {
	mu       sync.Mutex
	jobs     []func()
	closed   bool
	draining bool
	wake     chan struct{}
	done     chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *jobQueue) start() {
	go q.run()
}

// push reports false once the queue is closed.
func (q *jobQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed || q.draining {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, fn)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *jobQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *jobQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.jobs) == 0 {
			if q.draining {
				q.closed = true
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		fn := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		fn()
	}
}

// stop discards queued jobs. A running job finishes.
func (q *jobQueue) stop() {
	q.mu.Lock()
	q.closed = true
	q.jobs = nil
	q.mu.Unlock()
	q.signal()
}

// drain runs what is queued, then exits. Further pushes are refused.
func (q *jobQueue) drain() {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()
	q.signal()
}
