package shiftimage

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

var (
	regularFont = mustParseFont(goregular.TTF)
	boldFont    = mustParseFont(gobold.TTF)
)

func mustParseFont(data []byte) *opentype.Font {
	f, err := opentype.Parse(data)
	if err != nil {
		panic(err)
	}
	return f
}

// LoadFont reads a TTF or OTF file. For a TTC or OTC collection the first
// font is used.
func LoadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	collection, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	f, err := collection.Font(0)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// fallbackFace draws each rune with the first font that has a glyph for it.
// The last face is used for runes no font covers. Metrics come from the
// first face.
type fallbackFace struct {
	fonts []*opentype.Font
	faces []font.Face
	buf   sfnt.Buffer
}

func newFallbackFace(fonts []*opentype.Font, size float64) (font.Face, error) {
	if len(fonts) == 1 {
		return newFace(fonts[0], size)
	}
	ff := &fallbackFace{fonts: fonts}
	for _, f := range fonts {
		face, err := newFace(f, size)
		if err != nil {
			_ = ff.Close()
			return nil, err
		}
		ff.faces = append(ff.faces, face)
	}
	return ff, nil
}

func (f *fallbackFace) pick(r rune) int {
	for i, ft := range f.fonts {
		if x, err := ft.GlyphIndex(&f.buf, r); err == nil && x != 0 {
			return i
		}
	}
	return len(f.faces) - 1
}

func (f *fallbackFace) Close() error {
	var first error
	for _, face := range f.faces {
		if err := face.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *fallbackFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return f.faces[f.pick(r)].Glyph(dot, r)
}

func (f *fallbackFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return f.faces[f.pick(r)].GlyphBounds(r)
}

func (f *fallbackFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	return f.faces[f.pick(r)].GlyphAdvance(r)
}

func (f *fallbackFace) Kern(r0, r1 rune) fixed.Int26_6 {
	i := f.pick(r0)
	if i != f.pick(r1) {
		return 0
	}
	return f.faces[i].Kern(r0, r1)
}

func (f *fallbackFace) Metrics() font.Metrics {
	return f.faces[0].Metrics()
}

type align int

const (
	alignLeft align = iota
	alignCenter
)

type baseline int

const (
	baselineTop baseline = iota
	baselineMiddle
)

type canvas struct {
	img *image.RGBA
}

func newCanvas(width, height int) *canvas {
	return &canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func px(v float64) int {
	return int(math.Round(v))
}

func (c *canvas) fill(x0, y0, x1, y1 float64, col color.Color) {
	r := image.Rect(px(x0), px(y0), px(x1), px(y1))
	xdraw.Draw(c.img, r, image.NewUniform(col), image.Point{}, xdraw.Src)
}

// hline draws a horizontal rule of the given weight centred on y.
func (c *canvas) hline(y, x0, x1 float64, weight int, col color.Color) {
	top := px(y) - (weight-1)/2
	r := image.Rect(px(x0), top, px(x1), top+weight)
	xdraw.Draw(c.img, r, image.NewUniform(col), image.Point{}, xdraw.Src)
}

func (c *canvas) vline(x, y0, y1 float64, col color.Color) {
	r := image.Rect(px(x), px(y0), px(x)+1, px(y1))
	xdraw.Draw(c.img, r, image.NewUniform(col), image.Point{}, xdraw.Src)
}

func (c *canvas) strokeRect(x, y, w, h float64, col color.Color) {
	c.hline(y, x, x+w, 1, col)
	c.hline(y+h, x, x+w+1, 1, col)
	c.vline(x, y, y+h, col)
	c.vline(x+w, y, y+h, col)
}

// text draws s anchored at (x, y) and clipped to clip.
func (c *canvas) text(s string, face font.Face, col color.Color, x, y float64, a align, b baseline, clip image.Rectangle) {
	dst, ok := c.img.SubImage(clip).(*image.RGBA)
	if !ok || dst.Bounds().Empty() {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: face}

	dotX := fixed.Int26_6(math.Round(x * 64))
	if a == alignCenter {
		dotX -= d.MeasureString(s) / 2
	}

	m := face.Metrics()
	dotY := fixed.Int26_6(math.Round(y * 64))
	switch b {
	case baselineTop:
		dotY += m.Ascent
	case baselineMiddle:
		dotY += (m.Ascent - m.Descent) / 2
	}

	d.Dot = fixed.Point26_6{X: dotX, Y: dotY}
	d.DrawString(s)
}
