package shard

// worker is one executor thread pinned to exactly one shard, draining
// a buffered channel of dispatched closures. A mutex alone doesn't
// express "pinned to one worker, no migration" — a goroutine that is
// the only caller of a given function does.
type worker struct {
	jobs chan func()
	done chan struct{}
}

func newWorker() *worker {
	w := &worker{
		jobs: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for job := range w.jobs {
		job()
	}
}

// dispatch submits fn to the worker and blocks until it has run.
func (w *worker) dispatch(fn func() error) error {
	errCh := make(chan error, 1)
	w.jobs <- func() {
		errCh <- fn()
	}
	return <-errCh
}

// stop closes the job channel and waits for the worker to drain,
// joined by shard.Manager.Close via errgroup.
func (w *worker) stop() {
	close(w.jobs)
	<-w.done
}
