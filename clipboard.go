// Package clipboard provides uniform, cross-platform access to the
// operating system's interactive clipboard over four native protocols: X11
// ICCCM selections, Wayland wlr-data-control, the Win32 global clipboard,
// and macOS NSPasteboard. It supports plain text, HTML with a plain-text
// alternate, and RGBA8 raster images.
//
//	cb, err := clipboard.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cb.Close()
//
//	if err := cb.Set().Text("hello world"); err != nil {
//		log.Fatal(err)
//	}
//	s, err := cb.Get().Text()
package clipboard

import (
	"errors"
	"sync"
)

// SelectionKind selects which native selection an operation targets.
// Clipboard is the conventional copy/paste buffer; Primary mirrors the X11
// "select to copy" buffer (and its Wayland v2 analogue); Secondary is a
// rarely used third X11 selection with no Wayland equivalent.
type SelectionKind int

const (
	SelClipboard SelectionKind = iota
	SelPrimary
	SelSecondary
)

func (k SelectionKind) String() string {
	switch k {
	case SelClipboard:
		return "CLIPBOARD"
	case SelPrimary:
		return "PRIMARY"
	case SelSecondary:
		return "SECONDARY"
	default:
		return "UNKNOWN"
	}
}

// setOptions carries every per-Set option across the platform extensions
// described in spec §4.1: clipboard(kind), wait(), and the Windows-only
// exclude_from_cloud/exclude_from_history hints.
type setOptions struct {
	kind               SelectionKind
	wait               bool
	excludeFromCloud   bool
	excludeFromHistory bool
}

// backend is the uniform façade every platform implementation satisfies.
// Backend dispatch (C3) picks one concrete implementation when a handle is
// constructed (by build tag, and on Linux by probing Wayland before X11) and
// calls it through this interface.
type backend interface {
	getText(kind SelectionKind) (string, error)
	getImage(kind SelectionKind) (ImageData, error)
	setText(opts setOptions, s string) error
	setHTML(opts setOptions, html, alt string) error
	setImage(opts setOptions, img ImageData) error
	clear(kind SelectionKind) error
	close()
}

// Clipboard is the root handle. Multiple Clipboard instances may coexist in
// one process without caller-visible global locking beyond what each
// backend already serializes internally (see §5). Close releases the
// handle; on X11 the last handle to close triggers clipboard-manager
// handover (§4.6).
type Clipboard struct {
	mu     sync.Mutex
	b      backend
	closed bool
}

// New initializes the platform backend and returns a ready handle.
func New() (*Clipboard, error) {
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Clipboard{b: b}, nil
}

// Close releases this handle. It is safe to call more than once; only the
// first call has effect. Backends that hold process-wide state (X11) use
// this as the trigger for reference-counted teardown — see x11_selection.go.
func (c *Clipboard) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.b.close()
	return nil
}

func (c *Clipboard) backend() (backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, newErr(KindUnknown, "clipboard handle is closed")
	}
	return c.b, nil
}

// Get builds a read operation against this handle's Clipboard selection by
// default; call Clipboard(kind) to target Primary/Secondary.
func (c *Clipboard) Get() *Get {
	return &Get{c: c, kind: SelClipboard}
}

// Get is the read-side builder (§4.1).
type Get struct {
	c    *Clipboard
	kind SelectionKind
}

// Clipboard selects which native selection this read targets.
func (g *Get) Clipboard(kind SelectionKind) *Get {
	g.kind = kind
	return g
}

// Text reads the selection's text content.
func (g *Get) Text() (string, error) {
	b, err := g.c.backend()
	if err != nil {
		return "", err
	}
	return b.getText(g.kind)
}

// Image reads the selection's image content.
func (g *Get) Image() (ImageData, error) {
	b, err := g.c.backend()
	if err != nil {
		return ImageData{}, err
	}
	return b.getImage(g.kind)
}

// Set builds a write operation against this handle's Clipboard selection by
// default.
func (c *Clipboard) Set() *Set {
	return &Set{c: c, opts: setOptions{kind: SelClipboard}}
}

// Set is the write-side builder (§4.1), carrying the platform extensions.
type Set struct {
	c    *Clipboard
	opts setOptions
}

// Clipboard selects which native selection this write targets.
func (s *Set) Clipboard(kind SelectionKind) *Set {
	s.opts.kind = kind
	return s
}

// Wait requests X11/Wayland "wait until superseded" semantics: the write
// call does not return until another writer replaces this selection's
// contents. No-op (but harmless) on Windows/macOS.
func (s *Set) Wait() *Set {
	s.opts.wait = true
	return s
}

// ExcludeFromCloud hints to Windows that this write should not be uploaded
// to the cloud clipboard. No-op on other platforms.
func (s *Set) ExcludeFromCloud() *Set {
	s.opts.excludeFromCloud = true
	return s
}

// ExcludeFromHistory hints that this write should not appear in clipboard
// history (Windows' CanIncludeInClipboardHistory format, or the Wayland
// x-kde-passwordManagerHint MIME entry). No-op on X11 and macOS.
func (s *Set) ExcludeFromHistory() *Set {
	s.opts.excludeFromHistory = true
	return s
}

// Text publishes plain text.
func (s *Set) Text(text string) error {
	b, err := s.c.backend()
	if err != nil {
		return err
	}
	return b.setText(s.opts, text)
}

// HTML publishes an HTML fragment alongside a plain-text alternate seen by
// text-only consumers.
func (s *Set) HTML(html, alt string) error {
	b, err := s.c.backend()
	if err != nil {
		return err
	}
	return b.setHTML(s.opts, html, alt)
}

// Image publishes an RGBA8 raster image.
func (s *Set) Image(img ImageData) error {
	if err := img.validate(); err != nil {
		return err
	}
	b, err := s.c.backend()
	if err != nil {
		return err
	}
	return b.setImage(s.opts, img)
}

// Clear builds a clear operation against this handle's Clipboard selection
// by default.
func (c *Clipboard) Clear() *Clear {
	return &Clear{c: c, kind: SelClipboard}
}

// Clear is the clear-side builder (§4.1).
type Clear struct {
	c    *Clipboard
	kind SelectionKind
}

// Clipboard selects which native selection this clear targets.
func (cl *Clear) Clipboard(kind SelectionKind) *Clear {
	cl.kind = kind
	return cl
}

// Default clears the selection's contents. On X11 and Wayland it publishes
// empty text, like Set().Text(""); on Windows and macOS it empties the
// native clipboard.
func (cl *Clear) Default() error {
	b, err := cl.c.backend()
	if err != nil {
		return err
	}
	return b.clear(cl.kind)
}

// Is reports whether err is a clipboard *Error with the given Kind. Thin
// convenience wrapper so callers needn't import errors themselves for the
// common case.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
