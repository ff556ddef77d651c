package rewrite

import "sync"

// Status reports a request's progress. Statuses for a request are delivered in the order its states were entered.
type Status struct {
	RequestID RequestID
	State     State
	Message   string
	Err       error // set for FAILED, and for a failed accept (State REVIEW)
}

// StatusSink receives statuses on a single goroutine owned by the Manager. Implementations should return promptly.
type StatusSink interface {
	Status(Status)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(Status)

func (f StatusFunc) Status(s Status) {
	f(s)
}

// statusQueue is an unbounded FIFO of statuses drained by one goroutine, so that emitting never blocks a caller holding the manager's lock.
type statusQueue struct {
	sink StatusSink

	mu     sync.Mutex
	items  []Status
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newStatusQueue(sink StatusSink) *statusQueue {
	q := &statusQueue{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *statusQueue) push(s Status) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *statusQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, s := range items {
			if q.sink != nil {
				q.sink.Status(s)
			}
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// close delivers everything already pushed, then stops the queue.
func (q *statusQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}
