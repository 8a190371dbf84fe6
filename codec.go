package clipboard

import (
	"bytes"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// encodePNG is the codec collaborator the X11, Wayland and macOS backends
// use to encode an RGBA8 image for the wire as image/png (Windows writes
// CF_DIBV5 instead; BMP/TIFF are decode-only fallbacks on read for
// Windows/macOS respectively). Goes through image.NRGBA (via
// ImageData.ToImage), not image.RGBA, so the straight bytes callers hand us
// reach png.Encode's NRGBA fast path unmodified instead of being
// misinterpreted as premultiplied. Treated as opaque per the spec: any
// failure maps to ConversionFailure.
func encodePNG(img ImageData) ([]byte, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.ToImage()); err != nil {
		return nil, newErr(KindConversionFailure, "png encode: %v", err)
	}
	return buf.Bytes(), nil
}

// decodePNG decodes an image/png payload into ImageData.
func decodePNG(data []byte) (ImageData, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageData{}, newErr(KindConversionFailure, "png decode: %v", err)
	}
	return ImageFromImage(img), nil
}

// decodeBMP decodes a Windows DIB payload (wrapped as BMP by the caller)
// into ImageData. Grounded on the teacher's DIB fallback, which also used
// golang.org/x/image/bmp.
func decodeBMP(data []byte) (ImageData, error) {
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageData{}, newErr(KindConversionFailure, "bmp decode: %v", err)
	}
	return ImageFromImage(img), nil
}

// decodeTIFF decodes a macOS NSPasteboard `public.tiff` payload into
// ImageData.
func decodeTIFF(data []byte) (ImageData, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageData{}, newErr(KindConversionFailure, "tiff decode: %v", err)
	}
	return ImageFromImage(img), nil
}
