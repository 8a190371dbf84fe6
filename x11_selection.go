//go:build linux && !android

package clipboard

import "sync"

// datum is a (format, bytes) pair held in a selection cell (§3).
type datum struct {
	format Atom
	bytes  []byte
}

// cell is the per-selection-kind owned-data store (C5). data == nil iff
// this process does not currently own the corresponding X selection; the
// server loop re-establishes that invariant on SelectionClear.
//
// The reader-writer lock guards data; the separate mutex+condvar pair
// guards change notification. Notifications are issued with the mutex
// held, per SPEC_FULL §9's "notify under lock" rule, so a waiter
// transitioning from examining the cell to sleeping on the condvar cannot
// miss a wakeup.
type cell struct {
	rw   sync.RWMutex
	data []datum

	notifyMu sync.Mutex
	cond     *sync.Cond
	gen      uint64
}

func newCell() *cell {
	c := &cell{}
	c.cond = sync.NewCond(&c.notifyMu)
	return c
}

// set replaces data (nil clears it) and returns the generation stamped on
// this change, for use with waitUntilSuperseded.
func (c *cell) set(data []datum) uint64 {
	c.rw.Lock()
	c.data = data
	c.rw.Unlock()

	c.notifyMu.Lock()
	c.gen++
	gen := c.gen
	c.cond.Broadcast()
	c.notifyMu.Unlock()
	return gen
}

func (c *cell) get() []datum {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.data
}

// waitUntilSuperseded blocks until the cell has been set again (to a new
// value or to nil) since generation was observed.
func (c *cell) waitUntilSuperseded(generation uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for c.gen == generation {
		c.cond.Wait()
	}
}

// handover state machine (C8).
type handoverState int

const (
	handoverNone handoverState = iota
	handoverInProgress
	handoverFinished
)

// globalClipboard is the process-wide X11 state: the connection, the
// hidden transfer window, the three selection cells, and the server loop's
// lifetime. Created on first acquireGlobal, torn down when the last handle
// releases it (§3 "Process-wide X11 state").
type globalClipboard struct {
	ctx   *xContext
	cells [3]*cell // indexed by SelectionKind

	handoverMu       sync.Mutex
	handoverCond     *sync.Cond
	handoverState    handoverState
	handoverWritten  bool
	handoverNotified bool

	serverDone chan struct{}
}

func newGlobalClipboard() (*globalClipboard, error) {
	if err := loadX11(); err != nil {
		return nil, err
	}
	ctx, err := newXContext()
	if err != nil {
		return nil, err
	}
	g := &globalClipboard{
		ctx:        ctx,
		cells:      [3]*cell{newCell(), newCell(), newCell()},
		serverDone: make(chan struct{}),
	}
	g.handoverCond = sync.NewCond(&g.handoverMu)
	go g.serverLoop()
	return g, nil
}

func (g *globalClipboard) cellFor(kind SelectionKind) *cell {
	return g.cells[kind]
}

// write asserts ownership of kind and publishes data (§4.3).
func (g *globalClipboard) write(kind SelectionKind, data []datum, wait bool) error {
	select {
	case <-g.serverDone:
		return newErr(KindUnknown, "X11 server loop has stopped")
	default:
	}

	selAtom := g.ctx.atoms.atomOfKind(kind)
	xSetSelectionOwner(g.ctx.display, selAtom, g.ctx.window, xCurrentTime)
	if xGetSelectionOwner(g.ctx.display, selAtom) != g.ctx.window {
		return &Error{Kind: KindClipboardOccupied, description: "failed to acquire selection ownership"}
	}
	xFlush(g.ctx.display)

	gen := g.cellFor(kind).set(data)
	if wait {
		g.cellFor(kind).waitUntilSuperseded(gen)
	}
	return nil
}

// clear drops ownership data for kind by publishing an empty text datum,
// per §4.5 "Clear is equivalent to set_text("")".
func (g *globalClipboard) clear(kind SelectionKind) error {
	return g.write(kind, []datum{{format: g.ctx.atoms.UTF8_STRING, bytes: nil}}, false)
}

// registry implements the reference-counted teardown described in §3 and
// §9. The original (Rust/Arc) design counts three required strong
// references at minimum — the registry, the server thread, and the
// dropping handle — because Arc has no garbage collector to keep the
// server goroutine's closure alive on its own. Go's GC already keeps the
// globalClipboard reachable for as long as the server goroutine runs, so
// the Go-idiomatic translation of that invariant is simpler: track only
// public Clipboard handle count, and run teardown when the last handle
// closes. The caller-visible behavior (handover + window teardown exactly
// when the last handle goes away) is identical; see DESIGN.md.
var (
	registryMu sync.Mutex
	registry   *globalClipboard
	handles    int
)

func acquireGlobal() (*globalClipboard, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		g, err := newGlobalClipboard()
		if err != nil {
			return nil, err
		}
		registry = g
	}
	handles++
	return registry, nil
}

func releaseGlobal() {
	registryMu.Lock()
	handles--
	if handles > 0 {
		registryMu.Unlock()
		return
	}
	g := registry
	registry = nil
	registryMu.Unlock()

	if g != nil {
		g.teardown()
	}
}
