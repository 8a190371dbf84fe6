//go:build linux && !android

package clipboard

import "unicode/utf8"

// x11Backend adapts the process-wide globalClipboard (C4-C8) to the public
// backend interface (C3).
type x11Backend struct {
	g *globalClipboard
}

func newX11Backend() (backend, error) {
	g, err := acquireGlobal()
	if err != nil {
		return nil, err
	}
	return &x11Backend{g: g}, nil
}

func (b *x11Backend) close() {
	releaseGlobal()
}

// textFormats is the negotiation order from §4.5: prefer UTF8_STRING, then
// its two MIME aliases, then the legacy STRING/TEXT/text-plain atoms.
func (b *x11Backend) textFormats() []Atom {
	a := &b.g.ctx.atoms
	return []Atom{a.UTF8_STRING, a.textPlainUTF8, a.textPlainUTF8Upper, a.STRING, a.TEXT, a.textPlain}
}

func (b *x11Backend) getText(kind SelectionKind) (string, error) {
	format, data, err := b.g.read(kind, b.textFormats())
	if err != nil {
		return "", err
	}
	if format == b.g.ctx.atoms.STRING {
		// STRING is ICCCM's Latin-1 text format: widen each byte to its
		// code point rather than decoding as UTF-8. Lossless for true
		// Latin-1 content, silently wrong for other legacy encodings — an
		// acknowledged open question (SPEC_FULL §9), preserved as-is.
		return latin1ToUTF8(data), nil
	}
	if !utf8.Valid(data) {
		return "", newErr(KindConversionFailure, "selection data under %v is not valid UTF-8", format)
	}
	return string(data), nil
}

func (b *x11Backend) getImage(kind SelectionKind) (ImageData, error) {
	_, data, err := b.g.read(kind, []Atom{b.g.ctx.atoms.imagePNG})
	if err != nil {
		return ImageData{}, err
	}
	return decodePNG(data)
}

func (b *x11Backend) setText(opts setOptions, s string) error {
	a := &b.g.ctx.atoms
	return b.g.write(opts.kind, []datum{{format: a.UTF8_STRING, bytes: []byte(s)}}, opts.wait)
}

// setHTML writes UTF8_STRING first so text-only consumers see the
// plain-text alternate, then text/html, per §4.5.
func (b *x11Backend) setHTML(opts setOptions, html, alt string) error {
	a := &b.g.ctx.atoms
	data := []datum{
		{format: a.UTF8_STRING, bytes: []byte(alt)},
		{format: a.textHTML, bytes: []byte(html)},
	}
	return b.g.write(opts.kind, data, opts.wait)
}

func (b *x11Backend) setImage(opts setOptions, img ImageData) error {
	png, err := encodePNG(img)
	if err != nil {
		return err
	}
	return b.g.write(opts.kind, []datum{{format: b.g.ctx.atoms.imagePNG, bytes: png}}, opts.wait)
}

func (b *x11Backend) clear(kind SelectionKind) error {
	return b.g.clear(kind)
}

func latin1ToUTF8(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
