package render

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// TerminalContainer sizes the surface from the controlling terminal. One row
// is reserved for the status line.
type TerminalContainer struct {
	fd      int
	changes chan struct{}
	stop    func()
	once    sync.Once
}

// NewTerminalContainer watches f (normally os.Stdout) for size changes.
func NewTerminalContainer(f *os.File) *TerminalContainer {
	c := &TerminalContainer{fd: int(f.Fd()), changes: make(chan struct{}, 1)}
	c.stop = watchResize(c.notify)
	return c
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Bounds implements Container. An unsized terminal reports 0x0, which the
// loop treats as a zero-sized surface.
func (c *TerminalContainer) Bounds() (int, int) {
	w, h, err := term.GetSize(c.fd)
	if err != nil || w <= 0 || h <= 1 {
		return 0, 0
	}
	return w, h - 1
}

// Changes implements Notifier.
func (c *TerminalContainer) Changes() <-chan struct{} {
	return c.changes
}

// Close stops watching for resize signals.
func (c *TerminalContainer) Close() {
	c.once.Do(c.stop)
}

func (c *TerminalContainer) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
