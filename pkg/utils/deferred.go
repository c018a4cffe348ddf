// Package utils holds small helpers shared by the CLI entrypoint.
package utils

import (
	"io"
	"sync"
)

// DeferredWriter buffers log events while a full-screen UI owns the terminal.
// Each Write is kept as one event so Flush can replay them through a
// line-oriented writer such as zerolog.ConsoleWriter.
type DeferredWriter struct {
	mu     sync.Mutex
	events [][]byte
}

func (d *DeferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, append([]byte(nil), p...))
	return len(p), nil
}

// Len returns the number of buffered events.
func (d *DeferredWriter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// Flush writes every buffered event to w in order and empties the buffer.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	events := d.events
	d.events = nil
	d.mu.Unlock()

	for _, ev := range events {
		if _, err := w.Write(ev); err != nil {
			return err
		}
	}
	return nil
}
