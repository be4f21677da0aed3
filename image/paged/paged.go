// Package paged opens one page of the sources holding several images: the
// pages of a pdf document and the frames of a gif animation.
package paged

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"

	"github.com/gen2brain/go-fitz"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"go.uber.org/multierr"
)

// DPI of the rendered pdf pages, one pixel per point like libvips.
const DPI = 72

// ErrNotPaged is returned for sources holding a single image, which are read
// as they are whatever the page requested.
var ErrNotPaged = errors.New("not a paged document")

// Load renders the page, counted from 0, of a paged source.
func Load(buffer []byte, page int) (image.Image, error) {
	if page < 0 {
		page = 0
	}

	kind, _ := filetype.Match(buffer)
	switch kind {
	case matchers.TypePdf:
		return pdfPage(buffer, page)
	case matchers.TypeGif:
		return gifFrame(buffer, page)
	}

	return nil, ErrNotPaged
}

func outOfRange(page, count int) error {
	return fmt.Errorf("page %d is out of range (%d pages)", page, count)
}

func pdfPage(buffer []byte, page int) (img image.Image, err error) {
	doc, err := fitz.NewFromMemory(buffer)
	if err != nil {
		return nil, fmt.Errorf("cannot open the pdf document: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(doc))

	if page >= doc.NumPage() {
		return nil, outOfRange(page, doc.NumPage())
	}

	return doc.ImageDPI(page, DPI)
}

// gifFrame renders the animation up to the given frame.
func gifFrame(buffer []byte, page int) (image.Image, error) {
	g, err := gif.DecodeAll(bytes.NewReader(buffer))
	if err != nil {
		return nil, err
	}

	if page >= len(g.Image) {
		return nil, outOfRange(page, len(g.Image))
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, g.Config.Width, g.Config.Height))
	for _, frame := range g.Image[:page+1] {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
	}

	return canvas, nil
}
