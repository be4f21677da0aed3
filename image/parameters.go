package image

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// error messages
var regionError = "IIIF 3.0 `region` argument is not recognized: %#v"
var sizeError = "IIIF 3.0 `size` argument is not recognized: %#v"
var sizeMissing = "IIIF 3.0 `size` argument is not supported as of yet: %#v"
var rotationError = "IIIF 3.0 `rotation` argument is not recognized: %#v"
var qualityError = "IIIF 3.0 `quality` and `format` arguments were expected: %#v"
var formatError = "IIIF 3.0 `format` argument is not recognized: %#v"

// ParseError reports a path segment outside of the IIIF grammar.
type ParseError struct {
	Field string
	Value string
	// Unsupported is set for forms the grammar defines but the server does
	// not implement (e.g. `!w,h`).
	Unsupported bool
}

func (e *ParseError) Error() string {
	switch {
	case e.Unsupported:
		return fmt.Sprintf(sizeMissing, e.Value)
	case e.Field == "region":
		return fmt.Sprintf(regionError, e.Value)
	case e.Field == "size":
		return fmt.Sprintf(sizeError, e.Value)
	case e.Field == "rotation":
		return fmt.Sprintf(rotationError, e.Value)
	case e.Field == "format":
		return fmt.Sprintf(formatError, e.Value)
	}
	return fmt.Sprintf(qualityError, e.Value)
}

// RegionKind enumerates the region forms.
type RegionKind int

const (
	RegionFull RegionKind = iota
	RegionSquare
	RegionAbsolute
	RegionPercent
)

// Region
// ------
// full
// square
// x,y,w,h (in pixels)
// pct:x,y,w,h (in percents)
type Region struct {
	Kind RegionKind
	X    float64
	Y    float64
	W    float64
	H    float64
}

// SizeKind enumerates the size forms.
type SizeKind int

const (
	SizeMax SizeKind = iota
	// SizeScaleAsFull is `^max`, treated as max until upscaling is supported.
	SizeScaleAsFull
	SizeWidth
	SizeHeight
	SizeWidthHeight
	SizePercent
	// SizeWidthHeightMin is `!w,h`. The parser refuses it.
	SizeWidthHeightMin
)

// Size
// ----
// max
// ^max
// w, (force width)
// ,h (force height)
// w,h (deform)
// pct:n (resize)
type Size struct {
	Kind    SizeKind
	Width   int
	Height  int
	Percent float64
}

// Rotation
// --------
// n angle clockwise in degrees
// !n angle clockwise in degrees with a flip (beforehand)
type Rotation struct {
	Degrees float64
	Mirror  bool
}

// Quality
// -------
// default
// color
// gray
// bitonal
type Quality int

const (
	QualityDefault Quality = iota
	QualityColor
	QualityGray
	QualityBitonal
)

var qualities = map[string]Quality{
	"default": QualityDefault,
	"color":   QualityColor,
	"gray":    QualityGray,
	"bitonal": QualityBitonal,
}

// Format is the requested output format.
type Format int

const (
	Jpg Format = iota
	Png
	Tif
	Webp
	Gif
	Pdf
)

var formats = map[string]Format{
	"jpg":  Jpg,
	"png":  Png,
	"tif":  Tif,
	"webp": Webp,
	"gif":  Gif,
	"pdf":  Pdf,
}

var formatNames = map[Format]string{
	Jpg:  "jpg",
	Png:  "png",
	Tif:  "tif",
	Webp: "webp",
	Gif:  "gif",
	Pdf:  "pdf",
}

func (f Format) String() string {
	return formatNames[f]
}

// Encoded returns the format the bytes are actually written in. Only jpg,
// png and webp have an encoder, the others fall back to jpg.
func (f Format) Encoded() Format {
	switch f {
	case Jpg, Png, Webp:
		return f
	}
	return Jpg
}

// MediaType returns the MIME type of the encoded output.
func (f Format) MediaType() string {
	switch f.Encoded() {
	case Png:
		return "image/png"
	case Webp:
		return "image/webp"
	}
	return "image/jpeg"
}

// ParseRegion reads the region segment.
func ParseRegion(s string) (Region, error) {
	switch s {
	case "full":
		return Region{Kind: RegionFull}, nil
	case "square":
		return Region{Kind: RegionSquare}, nil
	}

	kind := RegionAbsolute
	rest := s
	if strings.HasPrefix(s, "pct:") {
		kind = RegionPercent
		rest = s[4:]
	}

	sizes := strings.Split(rest, ",")
	if len(sizes) != 4 {
		return Region{}, &ParseError{Field: "region", Value: s}
	}

	var values [4]float64
	for i, v := range sizes {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Region{}, &ParseError{Field: "region", Value: s}
		}
		values[i] = f
	}

	return Region{
		Kind: kind,
		X:    values[0],
		Y:    values[1],
		W:    values[2],
		H:    values[3],
	}, nil
}

// ParseSize reads the size segment.
func ParseSize(s string) (Size, error) {
	switch s {
	case "max":
		return Size{Kind: SizeMax}, nil
	case "^max":
		return Size{Kind: SizeScaleAsFull}, nil
	}

	if strings.HasPrefix(s, "!") || strings.HasPrefix(s, "^") {
		return Size{}, &ParseError{Field: "size", Value: s, Unsupported: true}
	}

	if strings.HasPrefix(s, "pct:") {
		pct, err := strconv.ParseFloat(s[4:], 64)
		if err != nil {
			return Size{}, &ParseError{Field: "size", Value: s}
		}
		return Size{Kind: SizePercent, Percent: pct}, nil
	}

	sizes := strings.Split(s, ",")
	if len(sizes) != 2 {
		return Size{}, &ParseError{Field: "size", Value: s}
	}

	switch {
	case sizes[0] == "":
		h, err := parseDimension(sizes[1])
		if err != nil {
			return Size{}, &ParseError{Field: "size", Value: s}
		}
		return Size{Kind: SizeHeight, Height: h}, nil
	case sizes[1] == "":
		w, err := parseDimension(sizes[0])
		if err != nil {
			return Size{}, &ParseError{Field: "size", Value: s}
		}
		return Size{Kind: SizeWidth, Width: w}, nil
	}

	w, errW := parseDimension(sizes[0])
	h, errH := parseDimension(sizes[1])
	if errW != nil || errH != nil {
		return Size{}, &ParseError{Field: "size", Value: s}
	}

	return Size{Kind: SizeWidthHeight, Width: w, Height: h}, nil
}

func parseDimension(s string) (int, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// ParseRotation reads the rotation segment.
func ParseRotation(s string) (Rotation, error) {
	mirror := strings.HasPrefix(s, "!")
	degrees, err := strconv.ParseFloat(strings.TrimPrefix(s, "!"), 64)
	if err != nil {
		return Rotation{}, &ParseError{Field: "rotation", Value: s}
	}

	return Rotation{Degrees: degrees, Mirror: mirror}, nil
}

// ParseQuality reads the quality. There is no case folding.
func ParseQuality(s string) (Quality, error) {
	q, ok := qualities[s]
	if !ok {
		return 0, &ParseError{Field: "quality", Value: s}
	}
	return q, nil
}

// ParseFormat reads the format. There is no case folding nor aliasing.
func ParseFormat(s string) (Format, error) {
	f, ok := formats[s]
	if !ok {
		return 0, &ParseError{Field: "format", Value: s}
	}
	return f, nil
}

// Request is a parsed IIIF image request.
type Request struct {
	identifier string
	region     Region
	size       Size
	rotation   Rotation
	quality    Quality
	format     Format
	params     string
}

// ParseRequest builds a request out of the path segments. Every field is
// parsed and all the failures are reported together.
func ParseRequest(identifier, region, size, rotation, qualityFormat string) (*Request, error) {
	var err error

	r := &Request{
		identifier: identifier,
		params:     strings.Join([]string{region, size, rotation, qualityFormat}, "/"),
	}

	var e error
	r.region, e = ParseRegion(region)
	err = multierr.Append(err, e)

	r.size, e = ParseSize(size)
	err = multierr.Append(err, e)

	r.rotation, e = ParseRotation(rotation)
	err = multierr.Append(err, e)

	parts := strings.Split(qualityFormat, ".")
	if len(parts) != 2 {
		err = multierr.Append(err, &ParseError{Field: "quality", Value: qualityFormat})
	} else {
		r.quality, e = ParseQuality(parts[0])
		err = multierr.Append(err, e)

		r.format, e = ParseFormat(parts[1])
		err = multierr.Append(err, e)
	}

	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Request) Identifier() string { return r.identifier }
func (r *Request) Region() Region     { return r.region }
func (r *Request) Size() Size         { return r.size }
func (r *Request) Rotation() Rotation { return r.rotation }
func (r *Request) Quality() Quality   { return r.quality }
func (r *Request) Format() Format     { return r.format }

// Params returns region/size/rotation/quality.format as they were given,
// without any normalization.
func (r *Request) Params() string { return r.params }
