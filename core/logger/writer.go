package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// writeReq is either a log line or, with ack set, a flush barrier.
type writeReq struct {
	line []byte
	ack  chan error
}

// asyncWriter moves log I/O off the caller's goroutine. Lines reach every
// sink in order; buffers are flushed whenever the queue runs dry.
type asyncWriter struct {
	reqs  chan writeReq
	done  chan struct{}
	sinks []*bufio.Writer

	gate   sync.RWMutex // held for reading while sending on reqs
	closed bool

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	w := &asyncWriter{
		reqs: make(chan writeReq, 256),
		done: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for req := range w.reqs {
		if req.ack != nil {
			req.ack <- w.flush()
			continue
		}
		for _, s := range w.sinks {
			if _, err := s.Write(req.line); err != nil {
				w.fail(err)
			}
		}
		if len(w.reqs) == 0 {
			w.fail(w.flush())
		}
	}
	w.fail(w.flush())
}

// Write queues a copy of p. It blocks while the queue is full; lines are never
// dropped, but writes after Close are discarded.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.send(writeReq{line: append([]byte(nil), p...)})
}

// Flush returns once every line queued before it is written out.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	if err := w.send(writeReq{ack: ack}); err != nil {
		return err
	}
	return errors.Join(<-ack, w.Err())
}

// Close drains the queue and stops the worker.
func (w *asyncWriter) Close() error {
	w.gate.Lock()
	if !w.closed {
		w.closed = true
		close(w.reqs)
	}
	w.gate.Unlock()
	<-w.done
	return w.Err()
}

func (w *asyncWriter) send(req writeReq) error {
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.reqs <- req
	return nil
}

// Err returns the first sink error.
func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
