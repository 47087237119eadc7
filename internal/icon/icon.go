// Package icon draws the location pin used as the node marker.
package icon

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Path is where the page expects the pin image.
const Path = "/icons/location-pin.png"

// supersample is the oversampling factor; the pin is drawn large and scaled
// down to smooth its edges.
const supersample = 4

// DefaultColor is the pin fill.
var DefaultColor = color.RGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}

// ErrSize is returned for non-positive widths.
var ErrSize = errors.New("icon width must be positive")

// Pin renders a pin of the given width. The image is 1.5 times as tall as it
// is wide and its tip is the bottom-centre pixel.
func Pin(width int, c color.Color) (*image.RGBA, error) {
	if width <= 0 {
		return nil, ErrSize
	}
	height := width * 3 / 2

	big := image.NewRGBA(image.Rect(0, 0, width*supersample, height*supersample))
	rasterize(big, c)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), big, big.Bounds(), draw.Over, nil)
	return dst, nil
}

// PNG renders a pin and encodes it.
func PNG(width int, c color.Color) ([]byte, error) {
	img, err := Pin(width, c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5523

func rasterize(dst *image.RGBA, c color.Color) {
	b := dst.Bounds()
	w, h := float32(b.Dx()), float32(b.Dy())
	r := w / 2
	cx, cy := r, r
	k := kappa * r

	z := vector.NewRasterizer(b.Dx(), b.Dy())

	// outline: tip, left flank, round head, right flank
	z.MoveTo(cx, h)
	z.CubeTo(cx-0.3*r, h-0.6*r, 0, cy+0.8*r, 0, cy)
	z.CubeTo(0, cy-k, cx-k, 0, cx, 0)
	z.CubeTo(cx+k, 0, w, cy-k, w, cy)
	z.CubeTo(w, cy+0.8*r, cx+0.3*r, h-0.6*r, cx, h)
	z.ClosePath()

	// hole, wound the other way
	ri := 0.4 * r
	ki := kappa * ri
	z.MoveTo(cx+ri, cy)
	z.CubeTo(cx+ri, cy-ki, cx+ki, cy-ri, cx, cy-ri)
	z.CubeTo(cx-ki, cy-ri, cx-ri, cy-ki, cx-ri, cy)
	z.CubeTo(cx-ri, cy+ki, cx-ki, cy+ri, cx, cy+ri)
	z.CubeTo(cx+ki, cy+ri, cx+ri, cy+ki, cx+ri, cy)
	z.ClosePath()

	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}
