package image

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Pipeline applies the requests to the sources, in the IIIF order: region,
// size, rotation, quality and format.
type Pipeline struct {
	backend Backend
	pool    *Pool
}

// NewPipeline builds a pipeline running on the pool. A nil pool runs the work
// on the calling goroutine.
func NewPipeline(backend Backend, pool *Pool) *Pipeline {
	return &Pipeline{
		backend: backend,
		pool:    pool,
	}
}

// Process produces the derivative of the source at path.
func (p *Pipeline) Process(ctx context.Context, path string, req *Request) (*Derivative, error) {
	var d *Derivative
	err := p.do(ctx, func() error {
		var err error
		d, err = p.transform(path, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (p *Pipeline) do(ctx context.Context, fn func() error) error {
	if p.pool == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return run(fn)
	}
	return p.pool.Do(ctx, fn)
}

func (p *Pipeline) transform(path string, req *Request) (*Derivative, error) {
	img, err := p.open(path, req.Identifier())
	if err != nil {
		return nil, &ProcessingError{"load", err}
	}

	img, err = applyRegion(img, req.Region())
	if err != nil {
		return nil, &ProcessingError{"region", err}
	}

	img, err = applySize(img, req.Size())
	if err != nil {
		return nil, &ProcessingError{"size", err}
	}

	img, err = applyRotation(img, req.Rotation())
	if err != nil {
		return nil, &ProcessingError{"rotation", err}
	}

	img, err = applyQuality(img, req.Quality())
	if err != nil {
		return nil, &ProcessingError{"quality", err}
	}

	format := req.Format().Encoded()
	if format != req.Format() {
		zap.S().Debugw("falling back to another encoder",
			"requested", req.Format().String(),
			"encoded", format.String(),
		)
	}

	data, err := img.Encode(format)
	if err != nil {
		return nil, &ProcessingError{"format", err}
	}

	return &Derivative{Data: data, Format: format}, nil
}

func applyRegion(img Image, region Region) (Image, error) {
	width := img.Width()
	height := img.Height()

	var x, y, w, h int
	switch region.Kind {
	case RegionFull:
		return img, nil
	case RegionSquare:
		side := width
		if height < side {
			side = height
		}
		x = (width - side) / 2
		y = (height - side) / 2
		w = side
		h = side
	case RegionAbsolute:
		x = int(region.X)
		y = int(region.Y)
		w = int(region.W)
		h = int(region.H)
	case RegionPercent:
		x = int(float64(width) * region.X / 100.)
		y = int(float64(height) * region.Y / 100.)
		w = int(float64(width) * region.W / 100.)
		h = int(float64(height) * region.H / 100.)
	}

	zap.S().Debugw("crop area",
		"x", x,
		"y", y,
		"width", w,
		"height", h,
	)

	return img.Crop(x, y, w, h)
}

func applySize(img Image, size Size) (Image, error) {
	var hscale, vscale float64

	switch size.Kind {
	case SizeWidth:
		hscale = float64(size.Width) / float64(img.Width())
		vscale = hscale
	case SizeHeight:
		vscale = float64(size.Height) / float64(img.Height())
		hscale = vscale
	case SizeWidthHeight:
		// The aspect ratio is not kept.
		hscale = float64(size.Width) / float64(img.Width())
		vscale = float64(size.Height) / float64(img.Height())
	case SizePercent:
		hscale = size.Percent / 100.
		vscale = hscale
	default:
		// max, ^max and !w,h
		return img, nil
	}

	if math.IsNaN(hscale) || math.IsNaN(vscale) || math.IsInf(hscale, 0) || math.IsInf(vscale, 0) {
		return nil, fmt.Errorf("invalid scale %vx%v", hscale, vscale)
	}

	return img.Scale(hscale, vscale)
}

func applyRotation(img Image, rotation Rotation) (Image, error) {
	var err error

	if rotation.Mirror {
		img, err = img.Mirror()
		if err != nil {
			return nil, err
		}
	}

	if rotation.Degrees != 0 {
		img, err = img.Rotate(rotation.Degrees)
		if err != nil {
			return nil, err
		}
	}

	return img, nil
}

func applyQuality(img Image, quality Quality) (Image, error) {
	switch quality {
	case QualityGray:
		return img.Grayscale()
	case QualityBitonal:
		gray, err := img.Grayscale()
		if err != nil {
			return nil, err
		}
		return gray.Threshold()
	}

	// default and color
	return img, nil
}
