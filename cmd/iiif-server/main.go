package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greut/iiif3/cache"
	"github.com/greut/iiif3/config"
	"github.com/greut/iiif3/iiif"
	"github.com/greut/iiif3/image"
	"github.com/greut/iiif3/image/goimage"
	"github.com/greut/iiif3/image/vips"
	"github.com/greut/iiif3/profile"
	"github.com/greut/iiif3/source"
)

func initLogging(level string) {
	cfg := zap.NewProductionConfig()

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		zap.S().Warnw("unknown log level", "level", level)
	} else {
		cfg.Level = lvl
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

func newBackend(c *config.Config) image.Backend {
	if c.Backend == "imaging" {
		return goimage.New(c.Quality)
	}
	return vips.New(c.Quality)
}

func newResolver(c *config.Config) (*source.Resolver, error) {
	local := source.NewLocal(c.Images)
	if c.Remote == nil {
		return source.New(local, nil), nil
	}

	remote, err := source.NewRemote(c.Remote.BaseURL, c.Remote.Proxy,
		source.WithTimeout(c.Remote.Timeout.Duration),
		source.WithRateLimit(c.Remote.Rate, c.Remote.Burst),
	)
	if err != nil {
		return nil, err
	}

	return source.New(local, remote), nil
}

// serve runs the server until ctx is done, then lets the running requests
// finish within grace.
func serve(ctx context.Context, server *http.Server, grace time.Duration) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		zap.S().Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	// Configuration
	var configFile = flag.String("config", "config.toml", "Define the configuration file to use.")
	flag.Parse()

	if flag.NArg() > 0 {
		*configFile = flag.Arg(0)
	}

	initLogging("info")

	c := config.Default()
	if _, err := os.Stat(*configFile); err == nil {
		zap.S().Infow("reading configuration", "file", *configFile)
		c, err = config.Load(*configFile)
		if err != nil {
			zap.S().Fatalw("config", "error", err)
		}
	} else if err := c.Init(); err != nil {
		zap.S().Fatalw("config", "error", err)
	}

	initLogging(c.Level)
	defer zap.L().Sync() //nolint:errcheck

	disk, err := cache.NewDisk(c.Cache.Disk)
	if err != nil {
		zap.S().Fatalw("cannot create the disk cache", "dir", c.Cache.Disk, "error", err)
	}
	tiles := cache.New(cache.NewMemory(c.Cache.MemorySize), disk)

	resolver, err := newResolver(c)
	if err != nil {
		zap.S().Fatalw("cannot create the resolver", "error", err)
	}

	pool := image.NewPool(c.Workers)
	defer pool.Close()

	pipeline := image.NewPipeline(newBackend(c), pool)

	profiles, err := profile.NewBuilder(c.BaseURL, pipeline, c.Cache.Info)
	if err != nil {
		zap.S().Fatalw("cannot create the profile builder", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := &iiif.Service{
		Resolver: resolver,
		Tiles:    tiles,
		Pipeline: pipeline,
		Profiles: profiles,
		Metrics:  iiif.NewMetrics(registry, tiles, resolver),
		Prefix:   c.Prefix,
		MaxAge:   c.Cache.HTTP,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry:          registry,
		EnableOpenMetrics: true,
	}))
	mux.Handle("/", iiif.NewHandler(service))

	server := &http.Server{
		Addr:              c.Listen(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.S().Infow("running",
		"listen", c.Listen(),
		"prefix", c.Prefix,
		"backend", c.Backend,
		"workers", pool.Size(),
		"memory", c.Cache.Memory,
	)

	if err := serve(ctx, server, time.Minute); err != nil {
		zap.S().Fatalw("server", "error", err)
	}
	zap.S().Info("shutdown")
}
