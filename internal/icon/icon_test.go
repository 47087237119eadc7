package icon

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"github.com/cheekybits/is"
)

func TestPinShape(t *testing.T) {
	is := is.New(t)
	img, err := Pin(32, DefaultColor)
	is.NoErr(err)
	is.Equal(img.Bounds().Dx(), 32)
	is.Equal(img.Bounds().Dy(), 48)

	alpha := func(x, y int) uint8 { return img.RGBAAt(x, y).A }
	is.True(alpha(0, 0) < 50)   // corner
	is.True(alpha(31, 47) < 50) // beside the tip
	is.True(alpha(16, 16) < 50) // hole
	is.True(alpha(16, 4) > 200) // head ring
	is.True(alpha(4, 16) > 200) // left side of the head
}

func TestPNG(t *testing.T) {
	is := is.New(t)
	data, err := PNG(24, DefaultColor)
	is.NoErr(err)
	img, err := png.Decode(bytes.NewReader(data))
	is.NoErr(err)
	is.Equal(img.Bounds().Dx(), 24)
	is.Equal(img.Bounds().Dy(), 36)
}

func TestPinRejectsZeroWidth(t *testing.T) {
	is := is.New(t)
	_, err := Pin(0, DefaultColor)
	is.True(errors.Is(err, ErrSize))
}
