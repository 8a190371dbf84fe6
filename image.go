package clipboard

import "image"

// ImageData is a row-major, top-left-origin RGBA8 pixel buffer with
// straight (non-premultiplied) alpha. Width and
// Height may not be zero, and len(Bytes) must equal 4*Width*Height.
type ImageData struct {
	Width  int
	Height int
	Bytes  []byte
}

func (img ImageData) validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return newErr(KindConversionFailure, "image dimensions must be positive, got %dx%d", img.Width, img.Height)
	}
	want := 4 * img.Width * img.Height
	if len(img.Bytes) != want {
		return newErr(KindConversionFailure, "image byte length %d does not match 4*w*h=%d", len(img.Bytes), want)
	}
	return nil
}

// ToImage converts ImageData to a stdlib image.NRGBA sharing no memory with
// the receiver. NRGBA, not RGBA, because ImageData.Bytes is straight
// (non-premultiplied) alpha per its doc comment, and image.RGBA's Pix is
// defined to hold alpha-premultiplied values — feeding straight bytes to an
// image.RGBA silently corrupts any non-opaque, non-transparent pixel the
// moment something (e.g. image/png's encoder) reads it back through the
// premultiplied convention. image.NRGBA's Pix layout is straight RGBA8,
// byte-for-byte identical to ours, so this is a plain copy either way.
func (img ImageData) ToImage() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	copy(out.Pix, img.Bytes)
	return out
}

// ImageFromImage converts any stdlib image.Image into an ImageData,
// normalizing to straight (non-premultiplied) RGBA8 via image.NRGBA.
func ImageFromImage(src image.Image) ImageData {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nrgba.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return ImageData{Width: w, Height: h, Bytes: nrgba.Pix}
}
