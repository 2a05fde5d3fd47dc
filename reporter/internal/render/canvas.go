package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var face = basicfont.Face7x13

// Glyph metrics of face.
const (
	fontAscent = 11
	lineHeight = 16
)

// canvas is a thin drawing surface over an RGBA image.
type canvas struct {
	img *image.RGBA
}

func newCanvas(w, h int, bg color.Color) *canvas {
	c := &canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	c.fill(c.img.Bounds(), bg)
	return c
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// text draws s with its top-left corner at (x, y).
func (c *canvas) text(x, y int, s string, col color.Color) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+fontAscent),
	}
	d.DrawString(s)
}

// textRight draws s so that it ends at x.
func (c *canvas) textRight(x, y int, s string, col color.Color) {
	c.text(x-textWidth(s), y, s, col)
}

// textCentered centres s inside r.
func (c *canvas) textCentered(r image.Rectangle, s string, col color.Color) {
	x := r.Min.X + (r.Dx()-textWidth(s))/2
	y := r.Min.Y + (r.Dy()-fontAscent)/2
	c.text(x, y, s, col)
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// line draws a segment of the given thickness using Bresenham's algorithm.
func (c *canvas) line(x0, y0, x1, y1 int, col color.Color, thick int) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	e := dx + dy
	for {
		c.dot(x0, y0, col, thick)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// dot fills a size×size square centred on (x, y).
func (c *canvas) dot(x, y int, col color.Color, size int) {
	h := size / 2
	c.fill(image.Rect(x-h, y-h, x-h+size, y-h+size), col)
}

// frame outlines r with a 1px border.
func (c *canvas) frame(r image.Rectangle, col color.Color) {
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), col)
	c.fill(image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), col)
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), col)
	c.fill(image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), col)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
