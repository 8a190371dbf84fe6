// Copyright 2025 Ayman Bagabas
// SPDX-License-Identifier: MIT

//go:build linux && !android

package clipboard

import (
	"sync"
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Wayland core types.
type (
	wlDisplay  uintptr
	wlRegistry uintptr
	wlSeat     uintptr
	wlProxy    uintptr
)

// wlr-data-control-unstable-v1 object types.
type (
	zwlrDataControlManagerV1 uintptr
	zwlrDataControlDeviceV1  uintptr
	zwlrDataControlOfferV1   uintptr
	zwlrDataControlSourceV1  uintptr
)

// Request opcodes, per the wlr-data-control-unstable-v1 XML.
const (
	opDisplayGetRegistry = 1
	opRegistryBind       = 0

	opManagerCreateDataSource = 0
	opManagerGetDataDevice    = 1

	opSourceOffer   = 0
	opSourceDestroy = 1

	opDeviceSetSelection        = 0
	opDevicePrimarySelection    = 2 // v2 only
	opDeviceDestroy             = 1

	opOfferReceive = 0
)

const waylandManagerV2 = 2 // version that introduces primary selection

var (
	libwayland          uintptr
	wlRegistryInterface uintptr

	wlDisplayConnect          func(name *byte) wlDisplay
	wlDisplayDisconnect       func(display wlDisplay)
	wlDisplayRoundtrip        func(display wlDisplay) int32
	wlDisplayDispatch         func(display wlDisplay) int32
	wlDisplayFlush            func(display wlDisplay) int32
	wlProxyAddListener        func(proxy wlProxy, implementation uintptr, data uintptr) int32
	wlProxyMarshal            func(proxy wlProxy, opcode uint32, args ...uintptr)
	wlProxyMarshalConstructor func(proxy wlProxy, opcode uint32, iface uintptr, args ...uintptr) wlProxy
	wlProxyGetVersion         func(proxy wlProxy) uint32
	wlProxyDestroy            func(proxy wlProxy)
)

var waylandOnce sync.Once
var waylandLoadErr error

func loadWayland() error {
	waylandOnce.Do(func() {
		var err error
		libwayland, err = purego.Dlopen("libwayland-client.so.0", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			libwayland, err = purego.Dlopen("libwayland-client.so", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		}
		if err != nil {
			waylandLoadErr = newErr(KindUnknown, "failed to load libwayland-client: %v", err)
			return
		}
		purego.RegisterLibFunc(&wlDisplayConnect, libwayland, "wl_display_connect")
		purego.RegisterLibFunc(&wlDisplayDisconnect, libwayland, "wl_display_disconnect")
		purego.RegisterLibFunc(&wlDisplayRoundtrip, libwayland, "wl_display_roundtrip")
		purego.RegisterLibFunc(&wlDisplayDispatch, libwayland, "wl_display_dispatch")
		purego.RegisterLibFunc(&wlDisplayFlush, libwayland, "wl_display_flush")
		purego.RegisterLibFunc(&wlProxyAddListener, libwayland, "wl_proxy_add_listener")
		purego.RegisterLibFunc(&wlProxyMarshal, libwayland, "wl_proxy_marshal")
		purego.RegisterLibFunc(&wlProxyMarshalConstructor, libwayland, "wl_proxy_marshal_constructor")
		purego.RegisterLibFunc(&wlProxyGetVersion, libwayland, "wl_proxy_get_version")
		purego.RegisterLibFunc(&wlProxyDestroy, libwayland, "wl_proxy_destroy")

		wlRegistryInterface, err = purego.Dlsym(libwayland, "wl_registry_interface")
		if err != nil {
			waylandLoadErr = newErr(KindUnknown, "failed to resolve wl_registry_interface: %v", err)
		}
	})
	return waylandLoadErr
}

// KDE's clipboard managers/history tools recognize this MIME as a hint to
// skip persisting the entry (§4.10, SPEC_FULL).
const kdePasswordHintMIME = "x-kde-passwordManagerHint"

const (
	mimeUTF8       = "UTF8_STRING"
	mimeTextPlain  = "text/plain;charset=utf-8"
	mimeTextLegacy = "text/plain"
	mimeHTML       = "text/html"
	mimePNG        = "image/png"
)

type offerState struct {
	mimeTypes []string
}

// waylandConn is the single shared connection this process keeps open to
// the compositor; every Clipboard handle on Wayland shares it, serialized
// by mu, mirroring how the X11 backend shares one globalClipboard.
type waylandConn struct {
	mu sync.Mutex

	display       wlDisplay
	registry      wlRegistry
	seat          wlSeat
	manager       zwlrDataControlManagerV1
	managerVer    uint32
	device        zwlrDataControlDeviceV1
	clipboardOffer zwlrDataControlOfferV1
	primaryOffer   zwlrDataControlOfferV1
	offers         map[zwlrDataControlOfferV1]*offerState

	currentSource      zwlrDataControlSourceV1
	currentSourceData  map[string][]byte
	sourceCancelled     chan struct{}
}

var (
	waylandRegMu   sync.Mutex
	waylandShared  *waylandConn
	waylandHandles int
)

func acquireWayland() (*waylandConn, error) {
	waylandRegMu.Lock()
	defer waylandRegMu.Unlock()
	if waylandShared == nil {
		c, err := newWaylandConn()
		if err != nil {
			return nil, err
		}
		waylandShared = c
	}
	waylandHandles++
	return waylandShared, nil
}

func releaseWayland() {
	waylandRegMu.Lock()
	defer waylandRegMu.Unlock()
	waylandHandles--
	if waylandHandles > 0 {
		return
	}
	if waylandShared != nil {
		wlDisplayDisconnect(waylandShared.display)
		waylandShared = nil
	}
}

func cStringPtr(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

func goStringFromC(ptr *byte) string {
	if ptr == nil {
		return ""
	}
	var out []byte
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(uintptr(unsafe.Pointer(ptr)) + i))
		if c == 0 {
			break
		}
		out = append(out, c)
	}
	return string(out)
}

type wlRegistryListener struct {
	Global       uintptr
	GlobalRemove uintptr
}

type wlDataControlDeviceListener struct {
	DataOffer        uintptr
	Selection        uintptr
	Finished         uintptr
	PrimarySelection uintptr
}

type wlDataControlOfferListener struct {
	Offer uintptr
}

type wlDataControlSourceListener struct {
	Send      uintptr
	Cancelled uintptr
}

func newWaylandConn() (*waylandConn, error) {
	if err := loadWayland(); err != nil {
		return nil, err
	}
	c := &waylandConn{offers: make(map[zwlrDataControlOfferV1]*offerState)}

	c.display = wlDisplayConnect(nil)
	if c.display == 0 {
		return nil, newErr(KindUnknown, "failed to connect to Wayland display")
	}

	c.registry = wlRegistry(wlProxyMarshalConstructor(wlProxy(c.display), opDisplayGetRegistry, wlRegistryInterface))
	if c.registry == 0 {
		wlDisplayDisconnect(c.display)
		return nil, newErr(KindUnknown, "failed to get wl_registry")
	}

	listener := &wlRegistryListener{
		Global:       purego.NewCallback(c.registryGlobal),
		GlobalRemove: purego.NewCallback(c.registryGlobalRemove),
	}
	wlProxyAddListener(wlProxy(c.registry), uintptr(unsafe.Pointer(listener)), 0)
	wlDisplayRoundtrip(c.display)

	if c.manager == 0 {
		wlDisplayDisconnect(c.display)
		return nil, newErr(KindClipboardNotSupported, "compositor does not advertise zwlr_data_control_manager_v1")
	}
	if c.seat == 0 {
		wlDisplayDisconnect(c.display)
		return nil, newErr(KindUnknown, "compositor has no wl_seat")
	}

	c.device = zwlrDataControlDeviceV1(wlProxyMarshalConstructor(wlProxy(c.manager), opManagerGetDataDevice, 0, 0, uintptr(c.seat)))
	if c.device == 0 {
		wlDisplayDisconnect(c.display)
		return nil, newErr(KindUnknown, "failed to create data control device")
	}
	devListener := &wlDataControlDeviceListener{
		DataOffer:        purego.NewCallback(c.deviceDataOffer),
		Selection:        purego.NewCallback(c.deviceSelection),
		Finished:         purego.NewCallback(c.deviceFinished),
		PrimarySelection: purego.NewCallback(c.devicePrimarySelection),
	}
	wlProxyAddListener(wlProxy(c.device), uintptr(unsafe.Pointer(devListener)), 0)
	wlDisplayRoundtrip(c.display)

	return c, nil
}

//go:uintptrescapes
func (c *waylandConn) registryGlobal(data uintptr, registry wlProxy, name uint32, iface *byte, version uint32) {
	switch goStringFromC(iface) {
	case "wl_seat":
		c.seat = wlSeat(wlProxyMarshalConstructor(registry, opRegistryBind, 0, uintptr(name), uintptr(unsafe.Pointer(iface)), uintptr(version)))
	case "zwlr_data_control_manager_v1":
		c.manager = zwlrDataControlManagerV1(wlProxyMarshalConstructor(registry, opRegistryBind, 0, uintptr(name), uintptr(unsafe.Pointer(iface)), uintptr(version)))
		c.managerVer = version
	}
}

//go:uintptrescapes
func (c *waylandConn) registryGlobalRemove(data uintptr, registry wlProxy, name uint32) {}

//go:uintptrescapes
func (c *waylandConn) deviceDataOffer(data uintptr, device wlProxy, offer zwlrDataControlOfferV1) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers[offer] = &offerState{}
	listener := &wlDataControlOfferListener{Offer: purego.NewCallback(func(data uintptr, o wlProxy, mimeType *byte) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if st, ok := c.offers[zwlrDataControlOfferV1(o)]; ok {
			st.mimeTypes = append(st.mimeTypes, goStringFromC(mimeType))
		}
	})}
	wlProxyAddListener(wlProxy(offer), uintptr(unsafe.Pointer(listener)), 0)
}

//go:uintptrescapes
func (c *waylandConn) deviceSelection(data uintptr, device wlProxy, offer zwlrDataControlOfferV1) {
	c.mu.Lock()
	c.clipboardOffer = offer
	c.mu.Unlock()
}

//go:uintptrescapes
func (c *waylandConn) devicePrimarySelection(data uintptr, device wlProxy, offer zwlrDataControlOfferV1) {
	c.mu.Lock()
	c.primaryOffer = offer
	c.mu.Unlock()
}

//go:uintptrescapes
func (c *waylandConn) deviceFinished(data uintptr, device wlProxy) {}

func (c *waylandConn) offerFor(kind SelectionKind) (zwlrDataControlOfferV1, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case SelClipboard:
		if c.clipboardOffer == 0 {
			return 0, nil, ErrContentNotAvailable
		}
		return c.clipboardOffer, c.offers[c.clipboardOffer].mimeTypesOrEmpty(), nil
	case SelPrimary:
		if c.managerVer < waylandManagerV2 {
			return 0, nil, newErr(KindClipboardNotSupported, "compositor's data-control manager does not support primary selection (v%d < v2)", c.managerVer)
		}
		if c.primaryOffer == 0 {
			return 0, nil, ErrContentNotAvailable
		}
		return c.primaryOffer, c.offers[c.primaryOffer].mimeTypesOrEmpty(), nil
	default:
		return 0, nil, newErr(KindClipboardNotSupported, "Secondary selection has no Wayland equivalent")
	}
}

func (st *offerState) mimeTypesOrEmpty() []string {
	if st == nil {
		return nil
	}
	return st.mimeTypes
}

func hasMime(mimes []string, want string) bool {
	for _, m := range mimes {
		if m == want {
			return true
		}
	}
	return false
}

// receive reads one MIME type's bytes from an offer via a pipe, per the
// wlr-data-control `receive` request.
func (c *waylandConn) receive(offer zwlrDataControlOfferV1, mime string) ([]byte, error) {
	var fds [2]int
	if err := syscall.Pipe2(fds[:], syscall.O_CLOEXEC); err != nil {
		return nil, newErr(KindUnknown, "pipe2: %v", err)
	}
	readFd, writeFd := fds[0], fds[1]

	c.mu.Lock()
	wlProxyMarshal(wlProxy(offer), opOfferReceive, uintptr(unsafe.Pointer(cStringPtr(mime))), uintptr(writeFd))
	wlDisplayFlush(c.display)
	c.mu.Unlock()
	syscall.Close(writeFd)

	wlDisplayRoundtrip(c.display)

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := syscall.Read(readFd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil || n <= 0 {
			break
		}
	}
	syscall.Close(readFd)
	return out, nil
}

//go:uintptrescapes
func (c *waylandConn) sourceSend(data uintptr, source wlProxy, mimeType *byte, fd int32) {
	c.mu.Lock()
	payload, ok := c.currentSourceData[goStringFromC(mimeType)]
	c.mu.Unlock()
	go func() {
		defer syscall.Close(int(fd))
		if ok {
			syscall.Write(int(fd), payload)
		}
	}()
}

//go:uintptrescapes
func (c *waylandConn) sourceCancel(data uintptr, source wlProxy) {
	c.mu.Lock()
	if c.sourceCancelled != nil {
		close(c.sourceCancelled)
		c.sourceCancelled = nil
	}
	c.currentSource = 0
	c.currentSourceData = nil
	c.mu.Unlock()
}

// publish offers payload under each MIME key in data, installing send/cancel
// callbacks, and optionally blocks (when wait is true) until the compositor
// replaces the selection.
func (c *waylandConn) publish(kind SelectionKind, data map[string][]byte, wait bool) error {
	if kind == SelSecondary {
		return newErr(KindClipboardNotSupported, "Secondary selection has no Wayland equivalent")
	}
	if kind == SelPrimary && c.managerVer < waylandManagerV2 {
		return newErr(KindClipboardNotSupported, "compositor's data-control manager does not support primary selection (v%d < v2)", c.managerVer)
	}

	c.mu.Lock()
	source := zwlrDataControlSourceV1(wlProxyMarshalConstructor(wlProxy(c.manager), opManagerCreateDataSource, 0, 0))
	if source == 0 {
		c.mu.Unlock()
		return newErr(KindUnknown, "failed to create data source")
	}
	srcListener := &wlDataControlSourceListener{
		Send:      purego.NewCallback(c.sourceSend),
		Cancelled: purego.NewCallback(c.sourceCancel),
	}
	wlProxyAddListener(wlProxy(source), uintptr(unsafe.Pointer(srcListener)), 0)
	for mime := range data {
		wlProxyMarshal(wlProxy(source), opSourceOffer, uintptr(unsafe.Pointer(cStringPtr(mime))))
	}
	c.currentSource = source
	c.currentSourceData = data
	cancelled := make(chan struct{})
	c.sourceCancelled = cancelled

	op := uint32(opDeviceSetSelection)
	if kind == SelPrimary {
		op = opDevicePrimarySelection
	}
	wlProxyMarshal(wlProxy(c.device), op, uintptr(source))
	wlDisplayFlush(c.display)
	c.mu.Unlock()

	wlDisplayRoundtrip(c.display)

	if !wait {
		go c.pumpUntilCancelled(cancelled)
		return nil
	}
	c.pumpUntilCancelled(cancelled)
	return nil
}

func (c *waylandConn) pumpUntilCancelled(cancelled chan struct{}) {
	for {
		select {
		case <-cancelled:
			return
		default:
		}
		if wlDisplayDispatch(c.display) < 0 {
			return
		}
	}
}

// waylandBackend adapts waylandConn to the public backend interface.
type waylandBackend struct {
	c *waylandConn
}

func newWaylandBackend() (backend, error) {
	c, err := acquireWayland()
	if err != nil {
		return nil, err
	}
	return &waylandBackend{c: c}, nil
}

func (b *waylandBackend) close() {
	releaseWayland()
}

func (b *waylandBackend) getText(kind SelectionKind) (string, error) {
	offer, mimes, err := b.c.offerFor(kind)
	if err != nil {
		return "", err
	}
	for _, want := range []string{mimeUTF8, mimeTextPlain, mimeTextLegacy} {
		if hasMime(mimes, want) {
			data, err := b.c.receive(offer, want)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
	return "", ErrContentNotAvailable
}

func (b *waylandBackend) getImage(kind SelectionKind) (ImageData, error) {
	offer, mimes, err := b.c.offerFor(kind)
	if err != nil {
		return ImageData{}, err
	}
	if !hasMime(mimes, mimePNG) {
		return ImageData{}, ErrContentNotAvailable
	}
	data, err := b.c.receive(offer, mimePNG)
	if err != nil {
		return ImageData{}, err
	}
	return decodePNG(data)
}

func (b *waylandBackend) withExclusionHint(opts setOptions, data map[string][]byte) map[string][]byte {
	if opts.excludeFromHistory {
		data[kdePasswordHintMIME] = []byte("secret")
	}
	return data
}

func (b *waylandBackend) setText(opts setOptions, s string) error {
	data := b.withExclusionHint(opts, map[string][]byte{
		mimeUTF8:       []byte(s),
		mimeTextPlain:  []byte(s),
		mimeTextLegacy: []byte(s),
	})
	return b.c.publish(opts.kind, data, opts.wait)
}

func (b *waylandBackend) setHTML(opts setOptions, html, alt string) error {
	data := b.withExclusionHint(opts, map[string][]byte{
		mimeUTF8: []byte(alt),
		mimeHTML: []byte(html),
	})
	return b.c.publish(opts.kind, data, opts.wait)
}

func (b *waylandBackend) setImage(opts setOptions, img ImageData) error {
	png, err := encodePNG(img)
	if err != nil {
		return err
	}
	data := b.withExclusionHint(opts, map[string][]byte{mimePNG: png})
	return b.c.publish(opts.kind, data, opts.wait)
}

func (b *waylandBackend) clear(kind SelectionKind) error {
	return b.c.publish(kind, map[string][]byte{mimeUTF8: nil}, false)
}
