package facemesh

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"exam-proctor-agent/internal/proctor"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay is the surface drawn over the video. Points are normalized landmarks.
type Overlay interface {
	Resize(width, height int)
	Clear()
	Polyline(points []proctor.Point, c color.Color)
	Label(anchor proctor.Point, liftPx int, text string, c color.Color)
}

// RasterOverlay draws into a transparent RGBA image that the exam page composites
// over the video element.
type RasterOverlay struct {
	mu        sync.RWMutex
	img       *image.RGBA
	lineWidth int
}

func NewRasterOverlay() *RasterOverlay {
	return &RasterOverlay{img: image.NewRGBA(image.Rect(0, 0, 1, 1)), lineWidth: 2}
}

// Resize clamps each side to [1, MaxDimension].
func (o *RasterOverlay) Resize(width, height int) {
	width = clamp(width, 1, MaxDimension)
	height = clamp(height, 1, MaxDimension)
	o.mu.Lock()
	defer o.mu.Unlock()
	if b := o.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	o.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (o *RasterOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	draw.Draw(o.img, o.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (o *RasterOverlay) Polyline(points []proctor.Point, c color.Color) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 1; i < len(points); i++ {
		o.line(o.pixel(points[i-1]), o.pixel(points[i]), c)
	}
}

func (o *RasterOverlay) Label(anchor proctor.Point, liftPx int, text string, c color.Color) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.pixel(anchor)
	d := &font.Drawer{
		Dst:  o.img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(p.X, p.Y-liftPx),
	}
	d.DrawString(text)
}

func (o *RasterOverlay) Bounds() image.Rectangle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.img.Bounds()
}

func (o *RasterOverlay) At(x, y int) color.Color {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.img.At(x, y)
}

// PNG encodes the current overlay.
func (o *RasterOverlay) PNG() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, o.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pixel maps a normalized point into the raster, pinned to its edges so a line
// never walks outside the image.
func (o *RasterOverlay) pixel(p proctor.Point) image.Point {
	b := o.img.Bounds()
	return image.Point{
		X: clamp(scale(p.X, b.Dx()), 0, b.Dx()-1),
		Y: clamp(scale(p.Y, b.Dy()), 0, b.Dy()-1),
	}
}

func scale(v float64, size int) int {
	f := v * float64(size)
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > float64(size):
		return size
	}
	return int(f)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// line is Bresenham, thickened to lineWidth by stamping a small square.
func (o *RasterOverlay) line(a, b image.Point, c color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	x, y := a.X, a.Y
	for {
		o.stamp(x, y, c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func (o *RasterOverlay) stamp(x, y int, c color.Color) {
	for i := 0; i < o.lineWidth; i++ {
		for j := 0; j < o.lineWidth; j++ {
			if (image.Point{X: x + i, Y: y + j}).In(o.img.Bounds()) {
				o.img.Set(x+i, y+j, c)
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
