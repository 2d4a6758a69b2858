package waveform

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Surface is a 2D drawing target with a translatable origin, the minimal
// subset of a canvas context the renderer needs.
type Surface interface {
	Size() (width, height int)
	ClearRect(x, y, w, h float64)
	FillRect(x, y, w, h float64, c color.Color)
	Translate(dx, dy float64)
	ResetTransform()
}

// ImageSurface is a Surface backed by an RGBA image.
type ImageSurface struct {
	img    *image.RGBA
	tx, ty float64
}

// NewImageSurface allocates a transparent surface.
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Image returns the backing image.
func (s *ImageSurface) Image() *image.RGBA { return s.img }

// Transform returns the current origin offset.
func (s *ImageSurface) Transform() (tx, ty float64) { return s.tx, s.ty }

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) Translate(dx, dy float64) {
	s.tx += dx
	s.ty += dy
}

func (s *ImageSurface) ResetTransform() {
	s.tx, s.ty = 0, 0
}

func (s *ImageSurface) ClearRect(x, y, w, h float64) {
	draw.Draw(s.img, s.rect(x, y, w, h), image.Transparent, image.Point{}, draw.Src)
}

func (s *ImageSurface) FillRect(x, y, w, h float64, c color.Color) {
	draw.Draw(s.img, s.rect(x, y, w, h), image.NewUniform(c), image.Point{}, draw.Src)
}

// rect maps a user-space rectangle to device pixels. Negative sizes extend
// left/up, as on a canvas.
func (s *ImageSurface) rect(x, y, w, h float64) image.Rectangle {
	x0, x1 := x+s.tx, x+w+s.tx
	y0, y1 := y+s.ty, y+h+s.ty
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	r := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	)
	return r.Intersect(s.img.Bounds())
}
