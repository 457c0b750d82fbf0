//go:build windows

package render

// watchResize is a no-op on Windows, which has no SIGWINCH. The terminal
// size is still read on every explicit resize.
func watchResize(func()) (stop func()) {
	return func() {}
}
