// Copyright 2025 Ayman Bagabas
// SPDX-License-Identifier: MIT

//go:build windows

package clipboard

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Windows clipboard format constants.
const (
	cfUnicodeText = 13
	cfDIB         = 8
	cfDIBV5       = 17
	gmemMoveable  = 0x0002
)

// bitmapV5Header mirrors BITMAPV5HEADER (wingdi.h).
type bitmapV5Header struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
	RedMask       uint32
	GreenMask     uint32
	BlueMask      uint32
	AlphaMask     uint32
	CSType        uint32
	Endpoints     struct {
		CiexyzRed, CiexyzGreen, CiexyzBlue struct {
			CiexyzX, CiexyzY, CiexyzZ int32
		}
	}
	GammaRed    uint32
	GammaGreen  uint32
	GammaBlue   uint32
	Intent      uint32
	ProfileData uint32
	ProfileSize uint32
	Reserved    uint32
}

type bitmapHeader struct {
	Size          uint32
	Width         uint32
	Height        uint32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter uint32
	YPelsPerMeter uint32
	ClrUsed       uint32
	ClrImportant  uint32
}

// Bound via golang.org/x/sys/windows rather than raw syscall.NewLazyDLL: it
// restricts DLL search to system32 and gives typed Windows error returns,
// the same upgrade cogentcore.org/core and tinyrange-cc's console handling
// make over plain syscall (see DESIGN.md).
var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procOpenClipboard              = user32.NewProc("OpenClipboard")
	procCloseClipboard             = user32.NewProc("CloseClipboard")
	procEmptyClipboard             = user32.NewProc("EmptyClipboard")
	procGetClipboardData           = user32.NewProc("GetClipboardData")
	procSetClipboardData           = user32.NewProc("SetClipboardData")
	procIsClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	procGetClipboardSequenceNumber = user32.NewProc("GetClipboardSequenceNumber")
	procRegisterClipboardFormatW   = user32.NewProc("RegisterClipboardFormatW")

	procGlobalLock  = kernel32.NewProc("GlobalLock")
	procGlobalUnlock = kernel32.NewProc("GlobalUnlock")
	procGlobalAlloc = kernel32.NewProc("GlobalAlloc")
	procGlobalFree  = kernel32.NewProc("GlobalFree")
	procMoveMemory  = kernel32.NewProc("RtlMoveMemory")
)

func registeredFormat(name string) uintptr {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0
	}
	r, _, _ := procRegisterClipboardFormatW.Call(uintptr(unsafe.Pointer(p)))
	return r
}

var (
	cfHTML             uintptr
	cfCloudExclusion   uintptr
	cfHistoryExclusion uintptr
	registerFormatsOnce sync.Once
)

// ensureRegisteredFormats is called from withClipboard before the
// OpenClipboard retry loop, i.e. before the point that's supposed to be the
// only OS-level serialization across concurrently-constructed handles
// (§5). A plain bool guard would race under concurrent New() calls; use
// sync.Once like the tree's other one-time loaders (x11_types.go's
// loadX11, clipboard_wayland.go's loadWayland).
func ensureRegisteredFormats() {
	registerFormatsOnce.Do(func() {
		cfHTML = registeredFormat("HTML Format")
		cfCloudExclusion = registeredFormat("CanUploadToCloudClipboard")
		cfHistoryExclusion = registeredFormat("CanIncludeInClipboardHistory")
	})
}

// withClipboard retries OpenClipboard up to 5 times with 5ms sleeps, per
// §4.7, to ride out a transiently contended native clipboard, then runs fn
// and always closes.
func withClipboard(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ensureRegisteredFormats()

	var opened bool
	for i := 0; i < 5; i++ {
		r, _, _ := procOpenClipboard.Call(0)
		if r != 0 {
			opened = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !opened {
		return &Error{Kind: KindClipboardOccupied, description: "OpenClipboard failed after 5 attempts"}
	}
	defer procCloseClipboard.Call()
	return fn()
}

type windowsBackend struct{}

func newBackend() (backend, error) {
	return &windowsBackend{}, nil
}

func (windowsBackend) close() {}

func (windowsBackend) getText(kind SelectionKind) (string, error) {
	var out string
	err := withClipboard(func() error {
		r, _, _ := procIsClipboardFormatAvailable.Call(cfUnicodeText)
		if r == 0 {
			return ErrContentNotAvailable
		}
		s, err := readUnicodeText()
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func readUnicodeText() (string, error) {
	hMem, _, _ := procGetClipboardData.Call(cfUnicodeText)
	if hMem == 0 {
		return "", ErrContentNotAvailable
	}
	p, _, _ := procGlobalLock.Call(hMem)
	if p == 0 {
		return "", newErr(KindUnknown, "GlobalLock failed")
	}
	defer procGlobalUnlock.Call(hMem)

	n := 0
	for ptr := unsafe.Pointer(p); *(*uint16)(ptr) != 0; n++ {
		ptr = unsafe.Pointer(uintptr(ptr) + 2)
	}
	s := unsafe.Slice((*uint16)(unsafe.Pointer(p)), n)
	return windows.UTF16ToString(s), nil
}

func (windowsBackend) getImage(kind SelectionKind) (ImageData, error) {
	var out ImageData
	err := withClipboard(func() error {
		img, err := readDIBV5()
		if err != nil {
			img, err = readDIB()
		}
		if err != nil {
			return err
		}
		out = img
		return nil
	})
	return out, err
}

func readDIBV5() (ImageData, error) {
	hMem, _, _ := procGetClipboardData.Call(cfDIBV5)
	if hMem == 0 {
		return ImageData{}, ErrContentNotAvailable
	}
	p, _, _ := procGlobalLock.Call(hMem)
	if p == 0 {
		return ImageData{}, newErr(KindUnknown, "GlobalLock failed")
	}
	defer procGlobalUnlock.Call(hMem)

	info := (*bitmapV5Header)(unsafe.Pointer(p))
	if info.BitCount != 32 {
		return ImageData{}, newErr(KindConversionFailure, "unsupported DIBV5 bit count %d", info.BitCount)
	}
	width, height := int(info.Width), int(info.Height)
	dataSize := int(info.Size) + 4*width*height
	data := unsafe.Slice((*byte)(unsafe.Pointer(p)), dataSize)

	// NRGBA, not RGBA: the bytes we're about to place are straight
	// (non-premultiplied), and image.RGBA's Pix is defined to hold
	// premultiplied values — see image.go's ToImage doc comment.
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	offset := int(info.Size)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := offset + 4*(y*width+x)
			// Rows were written bottom-up with a vertical flip on set, so
			// undo it here (§4.7, MS Word negative-height workaround).
			img.SetNRGBA(x, height-1-y, color.NRGBA{R: data[idx+2], G: data[idx+1], B: data[idx+0], A: data[idx+3]})
		}
	}
	return ImageFromImage(img), nil
}

func readDIB() (ImageData, error) {
	const fileHeaderLen = 14

	hMem, _, _ := procGetClipboardData.Call(cfDIB)
	if hMem == 0 {
		return ImageData{}, ErrContentNotAvailable
	}
	p, _, _ := procGlobalLock.Call(hMem)
	if p == 0 {
		return ImageData{}, newErr(KindUnknown, "GlobalLock failed")
	}
	defer procGlobalUnlock.Call(hMem)

	hdr := (*bitmapHeader)(unsafe.Pointer(p))
	dataSize := hdr.SizeImage + fileHeaderLen + hdr.Size
	if hdr.SizeImage == 0 && hdr.Compression == 0 {
		dataSize += hdr.Height * ((hdr.Width*uint32(hdr.BitCount)/8 + 3) &^ 3)
	}

	var buf bytes.Buffer
	buf.WriteByte('B')
	buf.WriteByte('M')
	writeLE32(&buf, dataSize)
	writeLE32(&buf, 0)
	writeLE32(&buf, fileHeaderLen+hdr.Size)
	headerData := unsafe.Slice((*byte)(unsafe.Pointer(p)), int(dataSize)-fileHeaderLen)
	buf.Write(headerData)

	return decodeBMP(buf.Bytes())
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func (windowsBackend) setText(opts setOptions, s string) error {
	return withClipboard(func() error {
		if err := emptyClipboard(); err != nil {
			return err
		}
		if err := writeUnicodeText(s); err != nil {
			return err
		}
		return applyExclusionHints(opts)
	})
}

func (windowsBackend) setHTML(opts setOptions, html, alt string) error {
	return withClipboard(func() error {
		if err := emptyClipboard(); err != nil {
			return err
		}
		if err := writeUnicodeText(alt); err != nil {
			return err
		}
		if err := writeHTMLFormat(html); err != nil {
			return err
		}
		return applyExclusionHints(opts)
	})
}

func (windowsBackend) setImage(opts setOptions, img ImageData) error {
	return withClipboard(func() error {
		if err := emptyClipboard(); err != nil {
			return err
		}
		if err := writeDIBV5(img); err != nil {
			return err
		}
		return applyExclusionHints(opts)
	})
}

func (windowsBackend) clear(kind SelectionKind) error {
	return withClipboard(emptyClipboard)
}

func emptyClipboard() error {
	r, _, _ := procEmptyClipboard.Call()
	if r == 0 {
		return newErr(KindUnknown, "EmptyClipboard failed")
	}
	return nil
}

func globalAllocCopy(data []byte) (uintptr, error) {
	hMem, _, _ := procGlobalAlloc.Call(gmemMoveable, uintptr(len(data)))
	if hMem == 0 {
		return 0, newErr(KindUnknown, "GlobalAlloc failed")
	}
	p, _, _ := procGlobalLock.Call(hMem)
	if p == 0 {
		procGlobalFree.Call(hMem)
		return 0, newErr(KindUnknown, "GlobalLock failed")
	}
	defer procGlobalUnlock.Call(hMem)
	if len(data) > 0 {
		procMoveMemory.Call(p, uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)))
	}
	return hMem, nil
}

func writeUnicodeText(s string) error {
	u, err := windows.UTF16FromString(s)
	if err != nil {
		return newErr(KindConversionFailure, "string contains embedded NUL: %v", err)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&u[0])), len(u)*2)
	hMem, err := globalAllocCopy(raw)
	if err != nil {
		return err
	}
	if v, _, _ := procSetClipboardData.Call(cfUnicodeText, hMem); v == 0 {
		procGlobalFree.Call(hMem)
		return newErr(KindUnknown, "SetClipboardData(CF_UNICODETEXT) failed")
	}
	return nil
}

func writeDIBV5(img ImageData) error {
	if err := img.validate(); err != nil {
		return err
	}
	headerSize := unsafe.Sizeof(bitmapV5Header{})
	imageSize := 4 * img.Width * img.Height
	data := make([]byte, int(headerSize)+imageSize)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			srcIdx := 4 * (y*img.Width + x)
			// Vertical flip + RGBA->ARGB-on-disk byte reorder, dodging the
			// negative-height-DIB bug some consumers (MS Word) have.
			dstY := img.Height - 1 - y
			dstIdx := int(headerSize) + 4*(dstY*img.Width+x)
			data[dstIdx+2] = img.Bytes[srcIdx+0]
			data[dstIdx+1] = img.Bytes[srcIdx+1]
			data[dstIdx+0] = img.Bytes[srcIdx+2]
			data[dstIdx+3] = img.Bytes[srcIdx+3]
		}
	}

	info := bitmapV5Header{
		Size:        uint32(headerSize),
		Width:       int32(img.Width),
		Height:      int32(img.Height),
		Planes:      1,
		BitCount:    32,
		Compression: 0,
		SizeImage:   uint32(imageSize),
		RedMask:     0xff0000,
		GreenMask:   0xff00,
		BlueMask:    0xff,
		AlphaMask:   0xff000000,
		CSType:      0x73524742, // "sRGB"
		Intent:      4,          // LCS_GM_IMAGES
	}
	infoBytes := (*[unsafe.Sizeof(bitmapV5Header{})]byte)(unsafe.Pointer(&info))[:]
	copy(data, infoBytes)

	hMem, err := globalAllocCopy(data)
	if err != nil {
		return err
	}
	if v, _, _ := procSetClipboardData.Call(cfDIBV5, hMem); v == 0 {
		procGlobalFree.Call(hMem)
		return newErr(KindUnknown, "SetClipboardData(CF_DIBV5) failed")
	}
	return nil
}

// htmlOffsets is the StartHTML/EndHTML/StartFragment/EndFragment byte
// offsets for a wrapHTML result, exposed separately so tests can check the
// arithmetic without reaching into the formatted header text.
type htmlOffsets struct {
	startHTML     int
	endHTML       int
	startFragment int
	endFragment   int
}

const cfHTMLFragStart = "<!--StartFragment-->"
const cfHTMLFragEnd = "<!--EndFragment-->"
const cfHTMLOpen = "<html><body>\r\n"
const cfHTMLClose = "\r\n</body></html>"
const cfHTMLHeaderTemplate = "Version:0.9\r\n" +
	"StartHTML:%010d\r\n" +
	"EndHTML:%010d\r\n" +
	"StartFragment:%010d\r\n" +
	"EndFragment:%010d\r\n"

// wrapHTML wraps html in the CF_HTML ("HTML Format") text wrapper, with
// StartHTML/EndHTML/StartFragment/EndFragment byte offsets computed over the
// final ASCII-headered byte string.
//
// The offsets count bytes of the UTF-8 encoding (len(html)), as in the
// original arboard implementation, so a multi-byte code point in html moves
// every later offset by its full byte length and the offsets stay correct
// for non-ASCII fragments too.
func wrapHTML(html string) ([]byte, htmlOffsets) {
	headerLen := len(fmt.Sprintf(cfHTMLHeaderTemplate, 0, 0, 0, 0))
	off := htmlOffsets{startHTML: headerLen}
	off.startFragment = off.startHTML + len(cfHTMLOpen) + len(cfHTMLFragStart)
	off.endFragment = off.startFragment + len(html)
	off.endHTML = off.endFragment + len(cfHTMLFragEnd) + len(cfHTMLClose)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, cfHTMLHeaderTemplate, off.startHTML, off.endHTML, off.startFragment, off.endFragment)
	buf.WriteString(cfHTMLOpen)
	buf.WriteString(cfHTMLFragStart)
	buf.WriteString(html)
	buf.WriteString(cfHTMLFragEnd)
	buf.WriteString(cfHTMLClose)
	return buf.Bytes(), off
}

func writeHTMLFormat(html string) error {
	wrapped, _ := wrapHTML(html)
	hMem, err := globalAllocCopy(wrapped)
	if err != nil {
		return err
	}
	if v, _, _ := procSetClipboardData.Call(cfHTML, hMem); v == 0 {
		procGlobalFree.Call(hMem)
		return newErr(KindUnknown, "SetClipboardData(HTML Format) failed")
	}
	return nil
}

// applyExclusionHints publishes the CanUploadToCloudClipboard /
// CanIncludeInClipboardHistory registered formats with a 4-byte zero
// payload, per §4.7/§4.9.
func applyExclusionHints(opts setOptions) error {
	if opts.excludeFromCloud {
		if err := setZeroFormat(cfCloudExclusion); err != nil {
			return err
		}
	}
	if opts.excludeFromHistory {
		if err := setZeroFormat(cfHistoryExclusion); err != nil {
			return err
		}
	}
	return nil
}

func setZeroFormat(format uintptr) error {
	if format == 0 {
		return nil
	}
	hMem, err := globalAllocCopy([]byte{0, 0, 0, 0})
	if err != nil {
		return err
	}
	if v, _, _ := procSetClipboardData.Call(format, hMem); v == 0 {
		procGlobalFree.Call(hMem)
		return newErr(KindUnknown, "SetClipboardData(exclusion format) failed")
	}
	return nil
}

// sequenceNumber is exposed for tests that poll GetClipboardSequenceNumber
// without needing to own a Clipboard handle.
func sequenceNumber() uint64 {
	r, _, _ := procGetClipboardSequenceNumber.Call()
	return uint64(r)
}
