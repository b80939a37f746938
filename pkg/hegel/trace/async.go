package trace

import (
	"fmt"
	"sync"
)

// defaultQueueDepth bounds how many rows an AsyncWriter buffers before
// readout loops start blocking on disk.
const defaultQueueDepth = 256

// AsyncWriter decouples readout loops from disk latency: rows go into
// a bounded queue and a background goroutine writes them in order.
// Close drains the queue, so a completed run never loses rows. One
// producer goroutine writes rows, and Close must follow the last
// WriteRow.
type AsyncWriter struct {
	w    *Writer
	ch   chan []float64
	done chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// NewAsyncWriter wraps w with a background flusher. depth <= 0 selects
// the default queue depth.
func NewAsyncWriter(w *Writer, depth int) *AsyncWriter {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	a := &AsyncWriter{
		w:    w,
		ch:   make(chan []float64, depth),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncWriter) run() {
	defer close(a.done)
	for row := range a.ch {
		if err := a.w.WriteRow(row); err != nil {
			a.mu.Lock()
			if a.err == nil {
				a.err = err
			}
			a.mu.Unlock()
		}
	}
}

// WriteRow queues one row. It blocks only when the queue is full, and
// reports the first error the flusher hit so the producer can abort.
func (a *AsyncWriter) WriteRow(vals []float64) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("write to closed data file %s", a.w.Path())
	}
	if a.err != nil {
		err := a.err
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()

	row := make([]float64, len(vals))
	copy(row, vals)
	a.ch <- row
	return nil
}

// Path returns where the underlying file is being written.
func (a *AsyncWriter) Path() string { return a.w.Path() }

// Close drains the queue, closes the file and returns the first error
// seen anywhere in the pipeline.
func (a *AsyncWriter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.ch)
	<-a.done

	closeErr := a.w.Close()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	return closeErr
}
