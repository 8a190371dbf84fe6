//go:build linux && !android

package clipboard

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// readerConn is an ephemeral, single-read X connection with its own
// window, discarded at the end of a read (§3 "Reader context").
type readerConn struct {
	display Display
	window  Window
}

func openReaderConn() (*readerConn, error) {
	type result struct{ d Display }
	ch := make(chan result, 1)
	go func() { ch <- result{d: xOpenDisplay(0)} }()

	var display Display
	select {
	case r := <-ch:
		display = r.d
	case <-time.After(10 * time.Millisecond):
		return nil, newErr(KindUnknown, "X11 connect timed out after 10ms")
	}
	if display == 0 {
		return nil, newErr(KindUnknown, "XOpenDisplay failed; no X server reachable on $DISPLAY")
	}

	root := xDefaultRootWindow(display)
	win := xCreateSimpleWindow(display, root, 0, 0, 1, 1, 0, 0, 0)
	xSelectInput(display, win, maskPropertyChange|maskStructureNotify)
	return &readerConn{display: display, window: win}, nil
}

func (rc *readerConn) close() {
	xDestroyWindow(rc.display, rc.window)
	xCloseDisplay(rc.display)
}

// waitEvent blocks up to timeout for the next event on this connection,
// using poll(2) on the Xlib connection fd so XNextEvent's own unbounded
// block never holds longer than our deadline.
func (rc *readerConn) waitEvent(timeout time.Duration) (*xEvent, bool) {
	ms := int(timeout / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: xConnectionNumber(rc.display), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil || n <= 0 {
		return nil, false
	}
	var ev xEvent
	xNextEventFn(rc.display, &ev)
	return &ev, true
}

func getProperty(display Display, win Window, prop Atom, del bool) (typ Atom, data []byte, err error) {
	var actual Atom
	var format int32
	var nitems, bytesAfter uint64
	var ptr *byte
	var deleteFlag Bool
	if del {
		deleteFlag = 1
	}
	ret := xGetWindowProperty(display, win, prop, 0, 1<<28, deleteFlag, xAnyPropertyType,
		&actual, &format, &nitems, &bytesAfter, &ptr)
	if ret != xSuccess {
		return 0, nil, newErr(KindUnknown, "XGetWindowProperty failed with status %d", ret)
	}
	if ptr != nil {
		defer xFreeFn(uintptr(unsafe.Pointer(ptr)))
	}
	if nitems > 0 && ptr != nil {
		data = make([]byte, nitems)
		copy(data, unsafe.Slice(ptr, nitems))
	}
	return actual, data, nil
}

// read performs a foreign-selection read with format negotiation (C7,
// §4.5). If this process already owns kind, it is answered directly from
// the cell (§2's data-flow note); otherwise a fresh reader connection
// converts the selection for each candidate format in order.
func (g *globalClipboard) read(kind SelectionKind, formats []Atom) (Atom, []byte, error) {
	if owned := g.cellFor(kind).get(); owned != nil {
		for _, f := range formats {
			for _, d := range owned {
				if d.format == f {
					return f, append([]byte(nil), d.bytes...), nil
				}
			}
		}
	}

	rc, err := openReaderConn()
	if err != nil {
		return 0, nil, err
	}
	defer rc.close()

	selAtom := g.ctx.atoms.atomOfKind(kind)
	for _, target := range formats {
		format, data, matched, err := rc.convertAndWait(&g.ctx.atoms, selAtom, target)
		if err != nil {
			return 0, nil, err
		}
		if matched {
			return format, data, nil
		}
	}
	return 0, nil, ErrContentNotAvailable
}

// convertAndWait implements one ConvertSelection round-trip, including
// INCR consumption, per §4.5 step 3. matched is false when this particular
// target simply wasn't available (caller should try the next format);
// err is non-nil only for protocol/timeout failures.
func (rc *readerConn) convertAndWait(atoms *x11Atoms, selAtom, target Atom) (Atom, []byte, bool, error) {
	xDeleteProperty(rc.display, rc.window, atoms.ARBOARD_CLIPBOARD)
	xConvertSelection(rc.display, selAtom, target, atoms.ARBOARD_CLIPBOARD, rc.window, xCurrentTime)
	xSync(rc.display, 0)

	deadline := time.Now().Add(4 * time.Second)
	usingIncr := false
	var buf []byte

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil, false, ErrContentNotAvailable
		}
		ev, ok := rc.waitEvent(remaining)
		if !ok {
			continue // spurious poll wakeup or timeout slice; re-check deadline
		}

		switch ev.typ {
		case evSelectionNotify:
			sev := asSelectionEvent(ev)
			if sev.property == xNone || sev.target != target {
				return 0, nil, false, nil
			}
			typ, data, err := getProperty(rc.display, rc.window, atoms.ARBOARD_CLIPBOARD, false)
			if err != nil {
				return 0, nil, false, err
			}
			if typ == atoms.INCR {
				if _, _, err := getProperty(rc.display, rc.window, atoms.ARBOARD_CLIPBOARD, true); err != nil {
					return 0, nil, false, err
				}
				usingIncr = true
				// Extend, don't reset, the deadline: the owner has just
				// advertised INCR but may take a while to send the first
				// PropertyNotify chunk. Only the per-chunk waits below reset
				// to now+10ms; this one keeps most of the original 4s budget
				// and adds a 10ms grace period on top of it.
				deadline = deadline.Add(10 * time.Millisecond)
				continue
			}
			return target, data, true, nil

		case evPropertyNotify:
			if !usingIncr {
				continue
			}
			pev := asPropertyEvent(ev)
			if pev.window != rc.window || pev.atom != atoms.ARBOARD_CLIPBOARD || pev.state != propertyNewValue {
				continue
			}
			_, chunk, err := getProperty(rc.display, rc.window, atoms.ARBOARD_CLIPBOARD, true)
			if err != nil {
				return 0, nil, false, err
			}
			if len(chunk) == 0 {
				return target, buf, true, nil
			}
			buf = append(buf, chunk...)
			deadline = time.Now().Add(10 * time.Millisecond)

		default:
			// ignore
		}
	}
}
