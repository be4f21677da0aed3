package image

import (
	"context"
)

// open loads the page named by the identifier, if any.
func (p *Pipeline) open(path, identifier string) (Image, error) {
	_, page := SplitIdentifier(identifier)
	return p.backend.Open(path, page)
}

// Dimensions reads the size of the source, of the selected page for paged
// documents.
func (p *Pipeline) Dimensions(ctx context.Context, path, identifier string) (int, int, error) {
	var width, height int
	err := p.do(ctx, func() error {
		img, err := p.open(path, identifier)
		if err != nil {
			return &ProcessingError{"load", err}
		}
		width = img.Width()
		height = img.Height()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return width, height, nil
}
