// Copyright 2025 Ayman Bagabas
// SPDX-License-Identifier: MIT

//go:build darwin

package clipboard

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/ebitengine/purego/objc"
)

var (
	nsPasteboardClass objc.Class
	nsDataClass       objc.Class

	selGeneralPasteboard  objc.SEL
	selDataForType        objc.SEL
	selClearContents      objc.SEL
	selSetDataForType     objc.SEL
	selDataWithBytesLen   objc.SEL
	selBytes              objc.SEL
	selLength             objc.SEL

	// NSString pasteboard-type constants, resolved once from AppKit.
	nsPasteboardTypeString objc.ID
	nsPasteboardTypePNG    objc.ID
	nsPasteboardTypeTIFF   objc.ID
	nsPasteboardTypeHTML   objc.ID

	darwinInitOnce sync.Once
	darwinInitErr  error
)

func darwinConstant(handle uintptr, name string) (objc.ID, error) {
	ptr, err := purego.Dlsym(handle, name)
	if err != nil {
		return 0, err
	}
	return objc.ID(*(*uintptr)(unsafe.Pointer(ptr))), nil
}

func ensureDarwinInit() error {
	darwinInitOnce.Do(func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		appkit, err := purego.Dlopen("/System/Library/Frameworks/AppKit.framework/AppKit", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			darwinInitErr = err
			return
		}

		nsPasteboardClass = objc.GetClass("NSPasteboard")
		nsDataClass = objc.GetClass("NSData")

		selGeneralPasteboard = objc.RegisterName("generalPasteboard")
		selDataForType = objc.RegisterName("dataForType:")
		selClearContents = objc.RegisterName("clearContents")
		selSetDataForType = objc.RegisterName("setData:forType:")
		selDataWithBytesLen = objc.RegisterName("dataWithBytes:length:")
		selBytes = objc.RegisterName("bytes")
		selLength = objc.RegisterName("length")

		if nsPasteboardTypeString, darwinInitErr = darwinConstant(appkit, "NSPasteboardTypeString"); darwinInitErr != nil {
			return
		}
		if nsPasteboardTypePNG, darwinInitErr = darwinConstant(appkit, "NSPasteboardTypePNG"); darwinInitErr != nil {
			return
		}
		if nsPasteboardTypeTIFF, darwinInitErr = darwinConstant(appkit, "NSPasteboardTypeTIFF"); darwinInitErr != nil {
			return
		}
		nsPasteboardTypeHTML, _ = darwinConstant(appkit, "NSPasteboardTypeHTML")
	})
	return darwinInitErr
}

type darwinBackend struct{}

func newBackend() (backend, error) {
	if err := ensureDarwinInit(); err != nil {
		return nil, newErr(KindUnknown, "loading AppKit: %v", err)
	}
	return &darwinBackend{}, nil
}

func (darwinBackend) close() {}

func generalPasteboard() (objc.ID, error) {
	pb := objc.ID(nsPasteboardClass).Send(selGeneralPasteboard)
	if pb == 0 {
		return 0, newErr(KindUnknown, "NSPasteboard generalPasteboard returned nil")
	}
	return pb, nil
}

func nsDataBytes(data objc.ID) []byte {
	if data == 0 {
		return nil
	}
	length := objc.Send[uint64](data, selLength)
	if length == 0 {
		return nil
	}
	ptr := data.Send(selBytes)
	if ptr == 0 {
		return nil
	}
	out := make([]byte, length)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length))
	return out
}

func nsDataFromBytes(buf []byte) objc.ID {
	if len(buf) == 0 {
		return objc.ID(nsDataClass).Send(selDataWithBytesLen, unsafe.Pointer(nil), uint64(0))
	}
	return objc.ID(nsDataClass).Send(selDataWithBytesLen, unsafe.Pointer(&buf[0]), uint64(len(buf)))
}

// SelectionKind is accepted for API uniformity but macOS exposes only the
// single general pasteboard: Primary/Secondary have no analogue here, per
// §4.1's platform-capability note.
func (darwinBackend) getText(kind SelectionKind) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return "", err
	}
	data := pb.Send(selDataForType, nsPasteboardTypeString)
	b := nsDataBytes(data)
	if b == nil {
		return "", ErrContentNotAvailable
	}
	return string(b), nil
}

func (darwinBackend) getImage(kind SelectionKind) (ImageData, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return ImageData{}, err
	}
	if b := nsDataBytes(pb.Send(selDataForType, nsPasteboardTypePNG)); b != nil {
		return decodePNG(b)
	}
	// NSPasteboard normalizes many image sources (screenshots, Preview,
	// other apps) to TIFF rather than PNG; fall back to it.
	if b := nsDataBytes(pb.Send(selDataForType, nsPasteboardTypeTIFF)); b != nil {
		return decodeTIFF(b)
	}
	return ImageData{}, ErrContentNotAvailable
}

func (darwinBackend) setText(opts setOptions, s string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return err
	}
	pb.Send(selClearContents)
	return setPasteboardData(pb, []byte(s), nsPasteboardTypeString)
}

// setHTML publishes NSPasteboardTypeHTML alongside the plain-text alternate,
// mirroring the UTF8_STRING+text/html ordering used on X11/Wayland so
// text-only readers on every platform see the same fallback (§4.5, §4.7).
func (darwinBackend) setHTML(opts setOptions, html, alt string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return err
	}
	pb.Send(selClearContents)
	if err := setPasteboardData(pb, []byte(alt), nsPasteboardTypeString); err != nil {
		return err
	}
	if nsPasteboardTypeHTML != 0 {
		if err := setPasteboardData(pb, []byte(wrapHTMLForPasteboard(html)), nsPasteboardTypeHTML); err != nil {
			return err
		}
	}
	return nil
}

// wrapHTMLForPasteboard wraps a fragment in a UTF-8 meta-tagged document
// before handing it to NSPasteboardTypeHTML, per §4.7 and the original
// implementation's platform/osx.rs set_html.
func wrapHTMLForPasteboard(html string) string {
	return `<html><head><meta http-equiv="content-type" content="text/html; charset=utf-8"></head><body>` +
		html + `</body></html>`
}

func (darwinBackend) setImage(opts setOptions, img ImageData) error {
	png, err := encodePNG(img)
	if err != nil {
		return err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return err
	}
	pb.Send(selClearContents)
	return setPasteboardData(pb, png, nsPasteboardTypePNG)
}

func setPasteboardData(pb objc.ID, buf []byte, pbType objc.ID) error {
	data := nsDataFromBytes(buf)
	if data == 0 {
		return newErr(KindUnknown, "NSData allocation failed")
	}
	ok := objc.Send[bool](pb, selSetDataForType, data, pbType)
	if !ok {
		return newErr(KindUnknown, "setData:forType: failed")
	}
	return nil
}

func (darwinBackend) clear(kind SelectionKind) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pb, err := generalPasteboard()
	if err != nil {
		return err
	}
	pb.Send(selClearContents)
	return nil
}
