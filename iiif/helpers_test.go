package iiif

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/greut/iiif3/cache"
	iiifimage "github.com/greut/iiif3/image"
	"github.com/greut/iiif3/image/goimage"
	"github.com/greut/iiif3/profile"
	"github.com/greut/iiif3/source"
)

type testServer struct {
	*httptest.Server
	service *Service
	cache   string
	proxy   string
	fetches *int64
}

func pngFixture(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 200, 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newServer(t *testing.T) *testServer {
	return newServerWithOptions(t, "", "")
}

// newServerWithOptions serves images/test.png (400x300) and doc.pdf (pages of
// 200x100, 300x150 and 400x200) locally and remote.png (300x200) from a
// remote origin.
func newServerWithOptions(t *testing.T, prefix, base string) *testServer {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "images"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "images", "test.png"), pngFixture(t, 400, 300), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "test.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	pdf, err := os.ReadFile("../image/paged/testdata/pages.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "doc.pdf"), pdf, 0o644); err != nil {
		t.Fatal(err)
	}

	var fetches int64
	remoteImage := pngFixture(t, 300, 200)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		if r.URL.Path != "/remote.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(remoteImage)
	}))
	t.Cleanup(origin.Close)

	proxy := t.TempDir()
	remote, err := source.NewRemote(origin.URL+"/", proxy)
	if err != nil {
		t.Fatal(err)
	}
	resolver := source.New(source.NewLocal(root), remote)

	dir := t.TempDir()
	disk, err := cache.NewDisk(dir)
	if err != nil {
		t.Fatal(err)
	}
	tiles := cache.New(cache.NewMemory(1<<20), disk)

	pool := iiifimage.NewPool(2)
	t.Cleanup(pool.Close)
	pipeline := iiifimage.NewPipeline(goimage.New(0), pool)

	profiles, err := profile.NewBuilder(base, pipeline, 16)
	if err != nil {
		t.Fatal(err)
	}

	service := &Service{
		Resolver: resolver,
		Tiles:    tiles,
		Pipeline: pipeline,
		Profiles: profiles,
		Metrics:  NewMetrics(prometheus.NewRegistry(), tiles, resolver),
		Prefix:   prefix,
		MaxAge:   3600,
	}

	ts := httptest.NewServer(NewHandler(service))
	t.Cleanup(ts.Close)

	return &testServer{
		Server:  ts,
		service: service,
		cache:   dir,
		proxy:   proxy,
		fetches: &fetches,
	}
}
