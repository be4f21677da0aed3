// Package vips is the libvips image backend, through bimg.
package vips

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/h2non/bimg.v1"

	iiifimage "github.com/greut/iiif3/image"
	"github.com/greut/iiif3/image/goimage"
	"github.com/greut/iiif3/image/paged"
)

// DefaultQuality of the jpeg and webp output.
const DefaultQuality = 85

// Backend opens files with libvips.
type Backend struct {
	quality int
}

// New creates a backend writing at the given quality.
func New(quality int) *Backend {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Backend{quality: quality}
}

// Open implements image.Backend. The pages of paged documents are rendered
// by package paged, the single images ignore the page.
func (b *Backend) Open(path string, page int) (iiifimage.Image, error) {
	buffer, err := bimg.Read(path)
	if err != nil {
		return nil, err
	}

	img, err := paged.Load(buffer, page)
	if err == nil {
		buffer, err = goimage.Wrap(img).Encode(iiifimage.Png)
		if err != nil {
			return nil, err
		}
		return b.wrap(buffer)
	} else if !errors.Is(err, paged.ErrNotPaged) {
		return nil, err
	}

	imageType := bimg.DetermineImageType(buffer)
	if !bimg.IsTypeSupported(imageType) {
		return nil, fmt.Errorf("%w: libvips cannot read %#v", iiifimage.ErrUnsupported, bimg.ImageTypes[imageType])
	}

	return b.wrap(buffer)
}

func (b *Backend) wrap(buffer []byte) (*Image, error) {
	img := bimg.NewImage(buffer)
	size, err := img.Size()
	if err != nil {
		return nil, err
	}

	return &Image{
		img:     img,
		width:   size.Width,
		height:  size.Height,
		quality: b.quality,
	}, nil
}

// Image implements image.Image. Every operation works on a fresh buffer as
// bimg mutates its images. The intermediate buffers are lossless png, only
// Encode writes the requested format.
type Image struct {
	img     *bimg.Image
	width   int
	height  int
	quality int
}

func (i *Image) process(options bimg.Options) (*Image, error) {
	options.Type = bimg.PNG

	buffer, err := bimg.NewImage(i.img.Image()).Process(options)
	if err != nil {
		return nil, fmt.Errorf("bimg couldn't process the image: %w", err)
	}

	b := Backend{quality: i.quality}
	return b.wrap(buffer)
}

// bridge runs fn on a decoded copy, for what libvips cannot do through bimg.
func (i *Image) bridge(fn func(iiifimage.Image) (iiifimage.Image, error)) (*Image, error) {
	buffer, err := bimg.NewImage(i.img.Image()).Convert(bimg.PNG)
	if err != nil {
		return nil, err
	}

	img, err := goimage.Decode(buffer)
	if err != nil {
		return nil, err
	}

	out, err := fn(img)
	if err != nil {
		return nil, err
	}

	buffer, err = out.Encode(iiifimage.Png)
	if err != nil {
		return nil, err
	}

	b := Backend{quality: i.quality}
	return b.wrap(buffer)
}

// Width implements image.Image.
func (i *Image) Width() int {
	return i.width
}

// Height implements image.Image.
func (i *Image) Height() int {
	return i.height
}

// Crop implements image.Image.
func (i *Image) Crop(x, y, width, height int) (iiifimage.Image, error) {
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > i.width || y+height > i.height {
		return nil, fmt.Errorf("bad extract area %d,%d,%d,%d on %dx%d", x, y, width, height, i.width, i.height)
	}

	opts := bimg.Options{
		AreaWidth:  width,
		AreaHeight: height,
		Left:       x,
		Top:        y,
	}

	// Hack: libvips does strange things here.
	// * https://github.com/h2non/bimg/issues/60
	// * https://github.com/h2non/bimg/commit/b7eaa00f104a8eab49eedf49d75b11308df95f7a
	if opts.Top <= 0 && opts.Left == 0 {
		opts.Top = -1
	}

	return i.process(opts)
}

// Scale implements image.Image.
func (i *Image) Scale(hscale, vscale float64) (iiifimage.Image, error) {
	width := int(float64(i.width)*hscale + .5)
	height := int(float64(i.height)*vscale + .5)
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("cannot scale %dx%d down to %dx%d", i.width, i.height, width, height)
	}

	return i.process(bimg.Options{
		Width:   width,
		Height:  height,
		Force:   true,
		Enlarge: true,
	})
}

// Mirror implements image.Image.
func (i *Image) Mirror() (iiifimage.Image, error) {
	return i.process(bimg.Options{Flip: true})
}

// Rotate implements image.Image. libvips only turns by multiples of 90
// degrees, the other angles go through the Go backend.
func (i *Image) Rotate(degrees float64) (iiifimage.Image, error) {
	if degrees == float64(int(degrees)) && int(degrees)%90 == 0 {
		angle := int(degrees) % 360
		if angle < 0 {
			angle += 360
		}
		if angle == 0 {
			return i, nil
		}
		return i.process(bimg.Options{Rotate: bimg.Angle(angle)})
	}

	zap.S().Debugw("arbitrary rotation outside of libvips", "degrees", degrees)

	return i.bridge(func(img iiifimage.Image) (iiifimage.Image, error) {
		return img.Rotate(degrees)
	})
}

// Grayscale implements image.Image.
func (i *Image) Grayscale() (iiifimage.Image, error) {
	// GREY16 causes segmentation faults on some inputs.
	return i.process(bimg.Options{Interpretation: bimg.InterpretationBW})
}

// Threshold implements image.Image.
func (i *Image) Threshold() (iiifimage.Image, error) {
	return i.bridge(func(img iiifimage.Image) (iiifimage.Image, error) {
		return img.Threshold()
	})
}

// Encode implements image.Image.
func (i *Image) Encode(format iiifimage.Format) ([]byte, error) {
	var imageType bimg.ImageType
	switch format {
	case iiifimage.Jpg:
		imageType = bimg.JPEG
	case iiifimage.Png:
		imageType = bimg.PNG
	case iiifimage.Webp:
		imageType = bimg.WEBP
	default:
		return nil, fmt.Errorf("%w: cannot write %s", iiifimage.ErrUnsupported, format)
	}

	if !bimg.IsTypeSupportedSave(imageType) {
		return nil, fmt.Errorf("%w: libvips cannot output this format %#v as of yet", iiifimage.ErrUnsupported, format.String())
	}

	return bimg.NewImage(i.img.Image()).Process(bimg.Options{
		Type:    imageType,
		Quality: i.quality,
	})
}
