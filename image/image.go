package image

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by a backend lacking a capability, like
// writing webp without libvips.
var ErrUnsupported = errors.New("not supported by the image backend")

// Backend opens images. It is the only thing the pipeline knows about the
// codec library.
type Backend interface {
	// Open decodes the given page of the file. Single page sources ignore
	// the page.
	Open(path string, page int) (Image, error)
}

// Image is a decoded picture. Every operation returns a new Image and leaves
// the receiver untouched.
type Image interface {
	Width() int
	Height() int
	Crop(x, y, width, height int) (Image, error)
	// Scale resizes with independent horizontal and vertical factors.
	Scale(hscale, vscale float64) (Image, error)
	// Mirror flips the image horizontally.
	Mirror() (Image, error)
	// Rotate turns the image clockwise.
	Rotate(degrees float64) (Image, error)
	// Grayscale converts to a single channel.
	Grayscale() (Image, error)
	// Threshold makes a two-level image, splitting at the midpoint of the
	// sample range.
	Threshold() (Image, error)
	Encode(format Format) ([]byte, error)
}

// ProcessingError is a failure of one of the pipeline stages.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
