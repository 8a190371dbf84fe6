//go:build linux && !android

package clipboard

import (
	"time"
	"unsafe"
)

// serverLoop is the dedicated goroutine blocking in XNextEvent on the
// transfer-window connection (C6). It is the only goroutine that reads
// events from g.ctx.display; write and requestHandover still issue
// requests (SetSelectionOwner, ConvertSelection, Flush) on that connection
// from the caller's goroutine.
func (g *globalClipboard) serverLoop() {
	defer close(g.serverDone)
	for {
		var ev xEvent
		xNextEventFn(g.ctx.display, &ev)

		switch ev.typ {
		case evDestroyNotify:
			dn := asDestroyWindowEvent(&ev)
			if dn.window == g.ctx.window {
				log().Debug("x11 server loop observed DestroyNotify, exiting")
				return
			}

		case evSelectionClear:
			sc := asSelectionClearEvent(&ev)
			kind, ok := g.ctx.atoms.kindOfSelection(sc.selection)
			if !ok {
				log().Warn("SelectionClear for unrecognized selection atom", "atom", sc.selection)
				continue
			}
			g.cellFor(kind).set(nil)
			log().Debug("selection cleared", "kind", kind)

		case evSelectionRequest:
			g.serveSelectionRequest(asSelectionRequestEvent(&ev))

		case evSelectionNotify:
			sn := asSelectionEvent(&ev)
			if sn.selection == g.ctx.atoms.CLIPBOARD_MANAGER {
				g.handoverMu.Lock()
				g.handoverNotified = true
				g.maybeFinishHandoverLocked()
				g.handoverMu.Unlock()
			}

		default:
			// ignore
		}
	}
}

// buildTargetsList computes the TARGETS reply contents for a cell's current
// data: TARGETS and SAVE_TARGETS are always advertised, followed by every
// format currently held, followed by the text/plain;charset=utf-8 aliases
// (both cases, per ICCCM convention) whenever UTF8_STRING is among them. Pure
// function of its arguments, no X11 calls, so it can be exercised without a
// live display.
func buildTargetsList(atoms *x11Atoms, data []datum) []Atom {
	targets := []Atom{atoms.TARGETS, atoms.SAVE_TARGETS}
	hasUTF8 := false
	for _, d := range data {
		targets = append(targets, d.format)
		if d.format == atoms.UTF8_STRING {
			hasUTF8 = true
		}
	}
	if hasUTF8 {
		targets = append(targets, atoms.textPlainUTF8, atoms.textPlainUTF8Upper)
	}
	return targets
}

// serveSelectionRequest answers a foreign SelectionRequest per §4.4.
func (g *globalClipboard) serveSelectionRequest(req *xSelectionRequestEvent) {
	kind, ok := g.ctx.atoms.kindOfSelection(req.selection)
	if !ok {
		log().Warn("SelectionRequest for unrecognized selection atom", "atom", req.selection)
		return
	}
	data := g.cellFor(kind).get()

	// Allocate a full xEvent (the union's worst-case size) rather than a
	// bare xSelectionEvent: XSendEvent's wire encoding reads sizeof(XEvent)
	// bytes from the pointer we hand it regardless of which member we
	// filled in, so a narrower allocation would let it read past the end
	// of the struct.
	var raw xEvent
	resp := asSelectionEvent(&raw)
	resp.typ = evSelectionNotify
	resp.display = req.display
	resp.requestor = req.requestor
	resp.selection = req.selection
	resp.target = req.target
	resp.time = req.time
	resp.property = xNone

	switch req.target {
	case g.ctx.atoms.TARGETS:
		targets := buildTargetsList(&g.ctx.atoms, data)
		xChangeProperty(req.display, req.requestor, req.property, g.ctx.atoms.ATOMATOM, 32, xPropModeReplace,
			(*byte)(unsafe.Pointer(&targets[0])), int32(len(targets)))
		resp.property = req.property

	default:
		for _, d := range data {
			if d.format != req.target {
				continue
			}
			if len(d.bytes) > 0 {
				xChangeProperty(req.display, req.requestor, req.property, d.format, 8, xPropModeReplace,
					&d.bytes[0], int32(len(d.bytes)))
			} else {
				xChangeProperty(req.display, req.requestor, req.property, d.format, 8, xPropModeReplace, nil, 0)
			}
			resp.property = req.property
			break
		}
	}

	xSendEvent(resp.display, resp.requestor, 0, 0, &raw)
	xFlush(g.ctx.display)

	if req.target != g.ctx.atoms.TARGETS {
		g.handoverMu.Lock()
		g.handoverWritten = true
		g.maybeFinishHandoverLocked()
		g.handoverMu.Unlock()
	}
}

// maybeFinishHandoverLocked must be called with handoverMu held.
func (g *globalClipboard) maybeFinishHandoverLocked() {
	if g.handoverState == handoverInProgress && g.handoverWritten && g.handoverNotified {
		g.handoverState = handoverFinished
		g.handoverCond.Broadcast()
	}
}

// requestHandover asks the session's clipboard manager to take over
// CLIPBOARD's contents (C8, §4.6). Best-effort: not all sessions run a
// manager, and a timeout is logged, not surfaced as an error.
func (g *globalClipboard) requestHandover() {
	data := g.cellFor(SelClipboard).get()
	if data == nil {
		return
	}

	g.handoverMu.Lock()
	g.handoverWritten = false
	g.handoverNotified = false
	g.handoverState = handoverInProgress
	g.handoverMu.Unlock()

	xConvertSelection(g.ctx.display, g.ctx.atoms.CLIPBOARD_MANAGER, g.ctx.atoms.SAVE_TARGETS,
		g.ctx.atoms.ARBOARD_CLIPBOARD, g.ctx.window, xCurrentTime)
	xFlush(g.ctx.display)

	if !g.waitHandoverFinished(100 * time.Millisecond) {
		log().Warn("clipboard manager handover timed out; continuing teardown")
	}
}

func (g *globalClipboard) waitHandoverFinished(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.handoverMu.Lock()
		for g.handoverState != handoverFinished {
			g.handoverCond.Wait()
		}
		g.handoverMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// teardown destroys the transfer window (causing the server goroutine to
// observe DestroyNotify and exit), joins it, and closes the connection.
func (g *globalClipboard) teardown() {
	g.requestHandover()

	xDestroyWindow(g.ctx.display, g.ctx.window)
	xFlush(g.ctx.display)
	<-g.serverDone
	xCloseDisplay(g.ctx.display)

	// Release any goroutine still parked in waitHandoverFinished after a
	// timeout, so it does not wait forever on a condvar nobody will signal
	// again.
	g.handoverMu.Lock()
	g.handoverState = handoverFinished
	g.handoverCond.Broadcast()
	g.handoverMu.Unlock()
}
