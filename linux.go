//go:build linux && !android

package clipboard

import "os"

// newBackend picks X11 vs Wayland the way arboard's
// platform/linux/mod.rs does: prefer Wayland when WAYLAND_DISPLAY is set
// (and the compositor actually speaks wlr-data-control), falling back to
// X11 otherwise. The teacher ships this routing idea as clipboard_linux.go,
// but that file declares symbols that collide with clipboard_x11.go under
// the same build tag (see DESIGN.md "Dropped teacher code") — reimplemented
// here instead of carried forward as a separate file.
func newBackend() (backend, error) {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if b, err := newWaylandBackend(); err == nil {
			return b, nil
		}
	}
	return newX11Backend()
}
