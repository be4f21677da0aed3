// Package goimage is an image backend written in Go, pdf rendering aside. It
// reads jpeg, png, tiff, bmp, webp, gif and pdf (see package paged for the
// pages) and writes jpeg and png.
package goimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // decoder
	_ "image/png"  // decoder
	"math"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // decoder
	_ "golang.org/x/image/tiff" // decoder
	_ "golang.org/x/image/webp" // decoder

	iiifimage "github.com/greut/iiif3/image"
	"github.com/greut/iiif3/image/paged"
)

// DefaultQuality of the jpeg output.
const DefaultQuality = 85

// midpoint splits the 8 bit samples in two halves.
const midpoint = 128

// Backend opens files with the standard decoders.
type Backend struct {
	quality int
}

// New creates a backend writing jpeg at the given quality.
func New(quality int) *Backend {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Backend{quality: quality}
}

// Open implements image.Backend. The page only matters to paged documents.
func (b *Backend) Open(path string, page int) (iiifimage.Image, error) {
	buffer, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, err := paged.Load(buffer, page)
	if err == nil {
		return b.wrap(img), nil
	} else if !errors.Is(err, paged.ErrNotPaged) {
		return nil, err
	}

	return b.decode(buffer)
}

func (b *Backend) decode(buffer []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(buffer))
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%w: %v", iiifimage.ErrUnsupported, err)
	} else if err != nil {
		return nil, err
	}

	return b.wrap(img), nil
}

// Decode reads an encoded image from memory.
func Decode(buffer []byte) (*Image, error) {
	return New(DefaultQuality).decode(buffer)
}

// Wrap turns a decoded image into an image.Image.
func Wrap(img image.Image) *Image {
	return New(DefaultQuality).wrap(img)
}

func (b *Backend) wrap(img image.Image) *Image {
	return &Image{img: img, quality: b.quality}
}

// Image implements image.Image over the standard library image.
type Image struct {
	img     image.Image
	quality int
}

func (i *Image) with(img image.Image) *Image {
	return &Image{img: img, quality: i.quality}
}

// Width implements image.Image.
func (i *Image) Width() int {
	return i.img.Bounds().Dx()
}

// Height implements image.Image.
func (i *Image) Height() int {
	return i.img.Bounds().Dy()
}

// Crop implements image.Image. The area must lie within the image.
func (i *Image) Crop(x, y, width, height int) (iiifimage.Image, error) {
	w := i.Width()
	h := i.Height()
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > w || y+height > h {
		return nil, fmt.Errorf("bad extract area %d,%d,%d,%d on %dx%d", x, y, width, height, w, h)
	}

	rect := image.Rect(x, y, x+width, y+height).Add(i.img.Bounds().Min)
	return i.with(imaging.Crop(i.img, rect)), nil
}

// Scale implements image.Image.
func (i *Image) Scale(hscale, vscale float64) (iiifimage.Image, error) {
	width := int(math.Round(float64(i.Width()) * hscale))
	height := int(math.Round(float64(i.Height()) * vscale))
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("cannot scale %dx%d down to %dx%d", i.Width(), i.Height(), width, height)
	}

	return i.with(imaging.Resize(i.img, width, height, imaging.Lanczos)), nil
}

// Mirror implements image.Image.
func (i *Image) Mirror() (iiifimage.Image, error) {
	return i.with(imaging.FlipH(i.img)), nil
}

// Rotate implements image.Image. imaging turns counter-clockwise.
func (i *Image) Rotate(degrees float64) (iiifimage.Image, error) {
	angle := math.Mod(degrees, 360)
	if angle < 0 {
		angle += 360
	}

	switch angle {
	case 0:
		return i, nil
	case 90:
		return i.with(imaging.Rotate270(i.img)), nil
	case 180:
		return i.with(imaging.Rotate180(i.img)), nil
	case 270:
		return i.with(imaging.Rotate90(i.img)), nil
	}

	return i.with(imaging.Rotate(i.img, 360-angle, color.Transparent)), nil
}

// Grayscale implements image.Image.
func (i *Image) Grayscale() (iiifimage.Image, error) {
	return i.with(toGray(i.img)), nil
}

func toGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}

	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Threshold implements image.Image.
func (i *Image) Threshold() (iiifimage.Image, error) {
	src := toGray(i.img)
	dst := image.NewGray(src.Bounds())

	for n, v := range src.Pix {
		if v > midpoint {
			dst.Pix[n] = 0xff
		}
	}

	return i.with(dst), nil
}

// Encode implements image.Image.
func (i *Image) Encode(format iiifimage.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case iiifimage.Jpg:
		err = imaging.Encode(&buf, i.img, imaging.JPEG, imaging.JPEGQuality(i.quality))
	case iiifimage.Png:
		err = imaging.Encode(&buf, i.img, imaging.PNG)
	default:
		return nil, fmt.Errorf("%w: cannot write %s", iiifimage.ErrUnsupported, format)
	}

	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
