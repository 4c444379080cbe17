package socket

// executor is the per-socket single-consumer work queue the spec calls
// the socket's "serialized executor": every state-mutating operation
// (recv completion, send-queue draining, close) runs as one task on this
// loop, so a socket's reads, writes, and close never race each other.
//
// Grounded on the teacher's internal/queue/runner.go ioLoop: a single
// pinned goroutine draining a channel of work items to completion.
type executor struct {
	tasks chan func()
	done  chan struct{}
}

func newExecutor() *executor {
	e := &executor{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.done)
	for fn := range e.tasks {
		fn()
	}
}

// Post enqueues fn to run on the executor; it may run after Post returns.
func (e *executor) Post(fn func()) {
	defer func() { recover() }() // tasks channel may be closed by a racing Stop
	e.tasks <- fn
}

// PostSync enqueues fn and blocks until it has finished running.
func (e *executor) PostSync(fn func()) {
	wait := make(chan struct{})
	e.Post(func() {
		fn()
		close(wait)
	})
	<-wait
}

// Stop closes the task channel; the loop drains whatever was already
// queued, then exits. Safe to call once.
func (e *executor) Stop() {
	close(e.tasks)
	<-e.done
}
