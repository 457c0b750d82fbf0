package render

import "sync"

// Container supplies the drawable area. The loop re-reads Bounds whenever a
// resize is pending.
type Container interface {
	Bounds() (width, height int)
}

// Notifier is implemented by containers that announce resizes themselves.
type Notifier interface {
	Changes() <-chan struct{}
}

// StaticContainer has a fixed size.
type StaticContainer struct {
	Width, Height int
}

// Bounds implements Container.
func (c StaticContainer) Bounds() (int, int) { return c.Width, c.Height }

// ResizableContainer is sized from outside, e.g. by the viewport API.
type ResizableContainer struct {
	mu      sync.Mutex
	width   int
	height  int
	changes chan struct{}
}

// NewResizableContainer returns a container of the given initial size.
func NewResizableContainer(width, height int) *ResizableContainer {
	return &ResizableContainer{width: width, height: height, changes: make(chan struct{}, 1)}
}

// Bounds implements Container.
func (c *ResizableContainer) Bounds() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Resize records the new size and signals Changes. Repeated resizes before
// the loop catches up collapse into one notification.
func (c *ResizableContainer) Resize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Changes implements Notifier.
func (c *ResizableContainer) Changes() <-chan struct{} {
	return c.changes
}
