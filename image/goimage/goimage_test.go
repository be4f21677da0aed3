package goimage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iiifimage "github.com/greut/iiif3/image"
)

func writePNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(t.TempDir(), "test.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeGIF(t *testing.T, widths ...int) string {
	t.Helper()

	anim := &gif.GIF{}
	for _, w := range widths {
		frame := image.NewPaletted(image.Rect(0, 0, w, 10), palette.Plan9)
		for i := range frame.Pix {
			frame.Pix[i] = uint8(w)
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 0)
	}
	anim.Config = image.Config{ColorModel: color.Palette(palette.Plan9), Width: 40, Height: 10}

	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))

	path := filepath.Join(t.TempDir(), "anim.gif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func process(t *testing.T, path, identifier, region, size, rotation, qualityFormat string) *iiifimage.Derivative {
	t.Helper()

	req, err := iiifimage.ParseRequest(identifier, region, size, rotation, qualityFormat)
	require.NoError(t, err)

	p := iiifimage.NewPipeline(New(0), nil)
	d, err := p.Process(context.Background(), path, req)
	require.NoError(t, err)
	return d
}

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestSquareJPEG(t *testing.T) {
	path := writePNG(t, 400, 300)

	d := process(t, path, "test.png", "square", "max", "0", "default.jpg")
	assert.Equal(t, iiifimage.Jpg, d.Format)

	cfg, format := decodeConfig(t, d.Data)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestWidthKeepsRatio(t *testing.T) {
	path := writePNG(t, 300, 200)

	d := process(t, path, "test.png", "full", "150,", "0", "default.png")

	cfg, format := decodeConfig(t, d.Data)
	assert.Equal(t, "png", format)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestDistortedSize(t *testing.T) {
	path := writePNG(t, 300, 200)

	d := process(t, path, "test.png", "10,10,100,100", "50,20", "0", "default.png")

	cfg, _ := decodeConfig(t, d.Data)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestIdempotent(t *testing.T) {
	path := writePNG(t, 120, 80)

	a := process(t, path, "test.png", "pct:10,10,80,80", "pct:50", "!90", "gray.png")
	b := process(t, path, "test.png", "pct:10,10,80,80", "pct:50", "!90", "gray.png")
	assert.Equal(t, a.Data, b.Data)

	cfg, _ := decodeConfig(t, a.Data)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 48, cfg.Height)
}

func TestRotation(t *testing.T) {
	path := writePNG(t, 60, 40)

	var tests = []struct {
		rotation      string
		width, height int
	}{
		{"0", 60, 40},
		{"90", 40, 60},
		{"180", 60, 40},
		{"270", 40, 60},
		{"-90", 40, 60},
		{"450", 40, 60},
	}

	for _, test := range tests {
		d := process(t, path, "test.png", "full", "max", test.rotation, "default.png")
		cfg, _ := decodeConfig(t, d.Data)
		assert.Equal(t, test.width, cfg.Width, test.rotation)
		assert.Equal(t, test.height, cfg.Height, test.rotation)
	}

	d := process(t, path, "test.png", "full", "max", "45", "default.png")
	cfg, _ := decodeConfig(t, d.Data)
	assert.Greater(t, cfg.Width, 60)
	assert.Greater(t, cfg.Height, 40)
}

func TestMirror(t *testing.T) {
	img, err := Decode(mustRead(t, writePNG(t, 4, 1)))
	require.NoError(t, err)

	mirrored, err := img.Mirror()
	require.NoError(t, err)

	src := color.NRGBAModel.Convert(img.img.At(0, 0))
	dst := color.NRGBAModel.Convert(mirrored.(*Image).img.At(3, 0))
	assert.Equal(t, src, dst)
}

func TestBitonal(t *testing.T) {
	path := writePNG(t, 200, 200)

	d := process(t, path, "test.png", "full", "max", "0", "bitonal.png")

	img, err := png.Decode(bytes.NewReader(d.Data))
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	for _, v := range gray.Pix {
		assert.Contains(t, []uint8{0, 255}, v)
	}
}

func TestGray(t *testing.T) {
	path := writePNG(t, 20, 20)

	d := process(t, path, "test.png", "full", "max", "0", "gray.png")

	img, err := png.Decode(bytes.NewReader(d.Data))
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, img)
}

func TestFallbackFormat(t *testing.T) {
	path := writePNG(t, 20, 20)

	for _, qf := range []string{"default.tif", "default.gif", "default.pdf"} {
		d := process(t, path, "test.png", "full", "max", "0", qf)
		assert.Equal(t, iiifimage.Jpg, d.Format)

		_, err := jpeg.DecodeConfig(bytes.NewReader(d.Data))
		assert.NoError(t, err, qf)
	}
}

func TestWebpUnsupported(t *testing.T) {
	path := writePNG(t, 20, 20)

	req, err := iiifimage.ParseRequest("test.png", "full", "max", "0", "default.webp")
	require.NoError(t, err)

	_, err = iiifimage.NewPipeline(New(0), nil).Process(context.Background(), path, req)
	assert.ErrorIs(t, err, iiifimage.ErrUnsupported)
}

func TestCropOutside(t *testing.T) {
	path := writePNG(t, 20, 20)

	req, err := iiifimage.ParseRequest("test.png", "10,10,20,20", "max", "0", "default.png")
	require.NoError(t, err)

	_, err = iiifimage.NewPipeline(New(0), nil).Process(context.Background(), path, req)

	var perr *iiifimage.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "region", perr.Stage)
}

func TestPages(t *testing.T) {
	path := writeGIF(t, 10, 20, 30)
	p := iiifimage.NewPipeline(New(0), nil)

	w, h, err := p.Dimensions(context.Background(), path, "anim.gif:page:2")
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 10, h)

	first := process(t, path, "anim.gif", "full", "max", "0", "default.png")
	third := process(t, path, "anim.gif:page:2", "full", "max", "0", "default.png")
	assert.NotEqual(t, first.Data, third.Data)

	_, _, err = p.Dimensions(context.Background(), path, "anim.gif:page:3")
	assert.Error(t, err)
}

func TestPDFPages(t *testing.T) {
	path := "../paged/testdata/pages.pdf"
	p := iiifimage.NewPipeline(New(0), nil)

	var tests = []struct {
		identifier    string
		width, height int
	}{
		{"doc.pdf", 200, 100},
		{"doc.pdf:page:1", 300, 150},
		{"doc.pdf:page:2", 400, 200},
		{"doc.pdf:page:x", 200, 100},
	}

	for _, test := range tests {
		w, h, err := p.Dimensions(context.Background(), path, test.identifier)
		require.NoError(t, err, test.identifier)
		assert.Equal(t, test.width, w, test.identifier)
		assert.Equal(t, test.height, h, test.identifier)
	}

	d := process(t, path, "doc.pdf:page:2", "square", "100,", "0", "default.png")
	cfg, _ := decodeConfig(t, d.Data)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)

	_, _, err := p.Dimensions(context.Background(), path, "doc.pdf:page:3")
	assert.Error(t, err)
}

func TestSinglePageIgnoresPage(t *testing.T) {
	path := writePNG(t, 30, 20)

	first := process(t, path, "test.png", "full", "max", "0", "default.png")
	other := process(t, path, "test.png:page:1", "full", "max", "0", "default.png")
	assert.Equal(t, first.Data, other.Data)
}

func TestNotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	_, err := New(0).Open(path, 0)
	assert.ErrorIs(t, err, iiifimage.ErrUnsupported)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
