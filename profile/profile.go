// Package profile describes the images as IIIF Image API 3.0 services.
package profile

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Context is the JSON-LD context of the info.json documents.
const Context = "http://iiif.io/api/image/3/context.json"

// Info contains the technical properties about an image.
type Info struct {
	Context       string   `json:"@context" mapstructure:"@context"`
	ID            string   `json:"id" mapstructure:"id"`
	Type          string   `json:"type" mapstructure:"type"`
	Protocol      string   `json:"protocol" mapstructure:"protocol"`
	Profile       string   `json:"profile" mapstructure:"profile"`
	Width         int      `json:"width" mapstructure:"width"`
	Height        int      `json:"height" mapstructure:"height"`
	ExtraFeatures []string `json:"extraFeatures" mapstructure:"extraFeatures"`
}

// Dimensioner reads the size of an image, of the selected page if any.
type Dimensioner interface {
	Dimensions(ctx context.Context, path, identifier string) (int, int, error)
}

type dimensions struct {
	width  int
	height int
}

// Builder creates the info documents.
type Builder struct {
	baseURL string
	images  Dimensioner
	sizes   *lru.Cache[string, dimensions]
}

// NewBuilder creates a builder. The dimensions of up to size images are
// kept around, the sources never change once resolved.
func NewBuilder(baseURL string, images Dimensioner, size int) (*Builder, error) {
	b := &Builder{
		baseURL: baseURL,
		images:  images,
	}

	if size > 0 {
		sizes, err := lru.New[string, dimensions](size)
		if err != nil {
			return nil, err
		}
		b.sizes = sizes
	}

	return b, nil
}

// BaseURL is the prefix of the image ids.
func (b *Builder) BaseURL() string {
	return b.baseURL
}

// Build describes the image at path.
func (b *Builder) Build(ctx context.Context, path, identifier string) (*Info, error) {
	return b.BuildFor(ctx, b.baseURL, path, identifier)
}

// BuildFor describes the image at path, for another base URL.
func (b *Builder) BuildFor(ctx context.Context, baseURL, path, identifier string) (*Info, error) {
	width, height, err := b.dimensions(ctx, path, identifier)
	if err != nil {
		return nil, err
	}

	return &Info{
		Context:  Context,
		ID:       baseURL + identifier,
		Type:     "ImageService3",
		Protocol: "http://iiif.io/api/image",
		Profile:  "level2",
		Width:    width,
		Height:   height,
		ExtraFeatures: []string{
			"rotationArbitrary",
			"mirroring",
			"regionSquare",
		},
	}, nil
}

func (b *Builder) dimensions(ctx context.Context, path, identifier string) (int, int, error) {
	key := path + "\x00" + identifier

	if b.sizes != nil {
		if d, ok := b.sizes.Get(key); ok {
			return d.width, d.height, nil
		}
	}

	width, height, err := b.images.Dimensions(ctx, path, identifier)
	if err != nil {
		return 0, 0, err
	}

	zap.S().Debugw("read dimensions",
		"identifier", identifier,
		"width", width,
		"height", height,
	)

	if b.sizes != nil {
		b.sizes.Add(key, dimensions{width, height})
	}

	return width, height, nil
}
