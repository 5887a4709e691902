package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const (
	writerQueue   = 256
	writerBufSize = 64 * 1024
)

// asyncWriter fans log lines out to its sinks from a single goroutine.
// A sink that fails is dropped and the others keep receiving lines. Lines
// written after Close go straight to the remaining sinks, so goroutines
// that outlive shutdown can still log.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	// closeMu guards closed and the queue's lifetime; mu guards the sinks.
	// The loop only takes mu, so a writer blocked on a full queue never
	// stalls it.
	closeMu sync.RWMutex
	closed  bool

	mu    sync.Mutex
	sinks []*bufio.Writer
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = writerBufSize
	}
	w := &asyncWriter{
		queue:    make(chan []byte, writerQueue),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
		case ack := <-w.flushReq:
			ack <- w.flush()
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	line := append([]byte(nil), p...)
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		w.write(line)
		return nil
	}
	w.queue <- line
	return nil
}

// Flush waits until every queued line has reached the sinks.
func (w *asyncWriter) Flush() error {
	w.closeMu.RLock()
	closed := w.closed
	w.closeMu.RUnlock()
	if closed {
		return w.flush()
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.flush()
	}
}

// Close drains the queue and returns the first sink error seen.
func (w *asyncWriter) Close() error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) write(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.eachSink(func(s *bufio.Writer) error {
		if _, err := s.Write(line); err != nil {
			return err
		}
		return s.Flush()
	})
}

func (w *asyncWriter) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	w.eachSink(func(s *bufio.Writer) error {
		err := s.Flush()
		if err != nil {
			errs = append(errs, err)
		}
		return err
	})
	return errors.Join(errs...)
}

// eachSink runs fn on every sink and drops the ones that fail. Callers
// hold mu.
func (w *asyncWriter) eachSink(fn func(*bufio.Writer) error) {
	kept := w.sinks[:0]
	for _, s := range w.sinks {
		if err := fn(s); err != nil {
			if w.err == nil {
				w.err = err
			}
			continue
		}
		kept = append(kept, s)
	}
	w.sinks = kept
}
