//go:build linux && !android

package clipboard

import (
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

func ptrOf(e *xEvent) unsafe.Pointer { return unsafe.Pointer(e) }

// X11 primitive types. Named the way Xlib names them (Display, Window,
// Atom, Time) so the purego bindings below read like the C headers they
// mirror.
type (
	Display uintptr
	Window  uintptr
	Atom    uintptr
	Time    uintptr
	Bool    int32
)

// X11 wire constants used by the reader and server loop.
const (
	xNone        Atom = 0
	xCurrentTime Time = 0

	xSuccess         = 0
	xAnyPropertyType = 0
	xPropModeReplace = 0

	evPropertyNotify   = 28
	evSelectionClear   = 29
	evSelectionRequest = 30
	evSelectionNotify  = 31
	evDestroyNotify    = 17

	propertyNewValue = 0
	propertyDelete   = 1

	maskStructureNotify = 1 << 17
	maskPropertyChange  = 1 << 22
)

// xEvent is a union in C; pad it to the largest variant Xlib defines
// (XClientMessageEvent), matching the teacher's sizing approach.
type xEvent struct {
	typ int32
	pad [23]uintptr
}

type xSelectionEvent struct {
	typ       int32
	_         [4]byte
	serial    uintptr
	sendEvent Bool
	_         [4]byte
	display   Display
	requestor Window
	selection Atom
	target    Atom
	property  Atom
	time      Time
}

type xSelectionRequestEvent struct {
	typ       int32
	_         [4]byte
	serial    uintptr
	sendEvent Bool
	_         [4]byte
	display   Display
	owner     Window
	requestor Window
	selection Atom
	target    Atom
	property  Atom
	time      Time
}

type xSelectionClearEvent struct {
	typ       int32
	_         [4]byte
	serial    uintptr
	sendEvent Bool
	_         [4]byte
	display   Display
	window    Window
	selection Atom
	time      Time
}

type xPropertyEvent struct {
	typ       int32
	_         [4]byte
	serial    uintptr
	sendEvent Bool
	_         [4]byte
	display   Display
	window    Window
	atom      Atom
	time      Time
	state     int32
}

type xDestroyWindowEvent struct {
	typ       int32
	_         [4]byte
	serial    uintptr
	sendEvent Bool
	_         [4]byte
	display   Display
	event     Window
	window    Window
}

func asSelectionEvent(e *xEvent) *xSelectionEvent {
	return (*xSelectionEvent)(ptrOf(e))
}
func asSelectionRequestEvent(e *xEvent) *xSelectionRequestEvent {
	return (*xSelectionRequestEvent)(ptrOf(e))
}
func asSelectionClearEvent(e *xEvent) *xSelectionClearEvent {
	return (*xSelectionClearEvent)(ptrOf(e))
}
func asPropertyEvent(e *xEvent) *xPropertyEvent {
	return (*xPropertyEvent)(ptrOf(e))
}
func asDestroyWindowEvent(e *xEvent) *xDestroyWindowEvent {
	return (*xDestroyWindowEvent)(ptrOf(e))
}

var (
	libX11Once sync.Once
	libX11Err  error
	libX11     uintptr

	xOpenDisplay        func(displayName uintptr) Display
	xCloseDisplay       func(display Display)
	xDefaultRootWindow  func(display Display) Window
	xCreateSimpleWindow func(display Display, parent Window, x, y int32, width, height, borderWidth uint32, border, background uintptr) Window
	xDestroyWindow      func(display Display, w Window)
	xInternAtom         func(display Display, atomName string, onlyIfExists Bool) Atom
	xSetSelectionOwner  func(display Display, selection Atom, owner Window, time Time)
	xGetSelectionOwner  func(display Display, selection Atom) Window
	xNextEventFn        func(display Display, event *xEvent)
	xChangeProperty     func(display Display, w Window, property Atom, typ Atom, format int32, mode int32, data *byte, nelements int32) int32
	xSendEvent          func(display Display, w Window, propagate Bool, eventMask int64, event *xEvent) int32
	xGetWindowProperty  func(display Display, w Window, property Atom, longOffset, longLength int64, delete Bool, reqType Atom, actualTypeReturn *Atom, actualFormatReturn *int32, nitemsReturn *uint64, bytesAfterReturn *uint64, propReturn **byte) int32
	xFreeFn             func(data uintptr)
	xDeleteProperty     func(display Display, w Window, property Atom)
	xConvertSelection   func(display Display, selection Atom, target Atom, property Atom, requestor Window, time Time)
	xSelectInput        func(display Display, w Window, eventMask int64)
	xFlush              func(display Display) int32
	xSync               func(display Display, discard Bool) int32
	xConnectionNumber   func(display Display) int32
	xMaxRequestSize     func(display Display) int64
)

var x11HelpMsg = `failed to initialize the X11 display; clipboard access will not work.
Install libX11 (Debian/Ubuntu: apt install libx11-dev; Fedora: dnf install
libX11-devel) and ensure DISPLAY is set, e.g. under Xvfb:

	Xvfb :99 -screen 0 1024x768x24 &
	export DISPLAY=:99.0
`

func loadX11() error {
	libX11Once.Do(func() {
		paths := []string{"libX11.so.6", "libX11.so"}
		var err error
		for _, p := range paths {
			libX11, err = purego.Dlopen(p, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
			if err == nil {
				break
			}
		}
		if err != nil {
			libX11Err = newErr(KindUnknown, "%s: %v", x11HelpMsg, err)
			return
		}
		purego.RegisterLibFunc(&xOpenDisplay, libX11, "XOpenDisplay")
		purego.RegisterLibFunc(&xCloseDisplay, libX11, "XCloseDisplay")
		purego.RegisterLibFunc(&xDefaultRootWindow, libX11, "XDefaultRootWindow")
		purego.RegisterLibFunc(&xCreateSimpleWindow, libX11, "XCreateSimpleWindow")
		purego.RegisterLibFunc(&xDestroyWindow, libX11, "XDestroyWindow")
		purego.RegisterLibFunc(&xInternAtom, libX11, "XInternAtom")
		purego.RegisterLibFunc(&xSetSelectionOwner, libX11, "XSetSelectionOwner")
		purego.RegisterLibFunc(&xGetSelectionOwner, libX11, "XGetSelectionOwner")
		purego.RegisterLibFunc(&xNextEventFn, libX11, "XNextEvent")
		purego.RegisterLibFunc(&xChangeProperty, libX11, "XChangeProperty")
		purego.RegisterLibFunc(&xSendEvent, libX11, "XSendEvent")
		purego.RegisterLibFunc(&xGetWindowProperty, libX11, "XGetWindowProperty")
		purego.RegisterLibFunc(&xFreeFn, libX11, "XFree")
		purego.RegisterLibFunc(&xDeleteProperty, libX11, "XDeleteProperty")
		purego.RegisterLibFunc(&xConvertSelection, libX11, "XConvertSelection")
		purego.RegisterLibFunc(&xSelectInput, libX11, "XSelectInput")
		purego.RegisterLibFunc(&xFlush, libX11, "XFlush")
		purego.RegisterLibFunc(&xSync, libX11, "XSync")
		purego.RegisterLibFunc(&xConnectionNumber, libX11, "XConnectionNumber")
		purego.RegisterLibFunc(&xMaxRequestSize, libX11, "XMaxRequestSize")
	})
	return libX11Err
}

// x11Atoms interns every reserved atom from SPEC_FULL §3 exactly once.
type x11Atoms struct {
	CLIPBOARD, PRIMARY, SECONDARY      Atom
	CLIPBOARD_MANAGER, SAVE_TARGETS    Atom
	TARGETS, ATOMATOM, INCR            Atom
	UTF8_STRING                        Atom
	textPlainUTF8, textPlainUTF8Upper  Atom
	STRING, TEXT, textPlain            Atom
	textHTML, imagePNG                 Atom
	ARBOARD_CLIPBOARD                  Atom
}

func internAtoms(display Display) x11Atoms {
	intern := func(name string) Atom { return xInternAtom(display, name, 0) }
	return x11Atoms{
		CLIPBOARD:          intern("CLIPBOARD"),
		PRIMARY:            intern("PRIMARY"),
		SECONDARY:          intern("SECONDARY"),
		CLIPBOARD_MANAGER:  intern("CLIPBOARD_MANAGER"),
		SAVE_TARGETS:       intern("SAVE_TARGETS"),
		TARGETS:            intern("TARGETS"),
		ATOMATOM:           intern("ATOM"),
		INCR:               intern("INCR"),
		UTF8_STRING:        intern("UTF8_STRING"),
		textPlainUTF8:      intern("text/plain;charset=utf-8"),
		textPlainUTF8Upper: intern("text/plain;charset=UTF-8"),
		STRING:             intern("STRING"),
		TEXT:               intern("TEXT"),
		textPlain:          intern("text/plain"),
		textHTML:           intern("text/html"),
		imagePNG:           intern("image/png"),
		ARBOARD_CLIPBOARD:  intern("ARBOARD_CLIPBOARD"),
	}
}

func (a *x11Atoms) atomOfKind(kind SelectionKind) Atom {
	switch kind {
	case SelPrimary:
		return a.PRIMARY
	case SelSecondary:
		return a.SECONDARY
	default:
		return a.CLIPBOARD
	}
}

func (a *x11Atoms) kindOfSelection(atom Atom) (SelectionKind, bool) {
	switch atom {
	case a.CLIPBOARD:
		return SelClipboard, true
	case a.PRIMARY:
		return SelPrimary, true
	case a.SECONDARY:
		return SelSecondary, true
	default:
		return 0, false
	}
}

// xContext bundles one X connection, its transfer window, and the interned
// atom table (§4.2). The 10ms connect is enforced via a helper goroutine
// plus a timed receive, since XOpenDisplay itself has no timeout parameter.
type xContext struct {
	display        Display
	window         Window
	atoms          x11Atoms
	maxRequestSize int64
}

func newXContext() (*xContext, error) {
	type result struct {
		d Display
	}
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

	return &xContext{
		display:        display,
		window:         win,
		atoms:          internAtoms(display),
		maxRequestSize: xMaxRequestSize(display) * 4,
	}, nil
}
