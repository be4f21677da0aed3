package iiif

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/greut/iiif3/cache"
	"github.com/greut/iiif3/image"
	"github.com/greut/iiif3/profile"
	"github.com/greut/iiif3/source"
)

// Service holds what the handlers share for the lifetime of the process.
type Service struct {
	Resolver *source.Resolver
	Tiles    *cache.TileCache
	Pipeline *image.Pipeline
	Profiles *profile.Builder
	Metrics  *Metrics
	// Prefix is where the IIIF routes are mounted, e.g. /iiif/3.
	Prefix string
	// MaxAge of the responses, in seconds.
	MaxAge int64
}

// MakeRouter construct the basic router (no middlewares)
func MakeRouter(prefix string) http.Handler {
	router := mux.NewRouter().UseEncodedPath()

	router.HandleFunc("/", IndexHandler)

	r := router
	if prefix = strings.TrimSuffix(prefix, "/"); prefix != "" {
		r = router.PathPrefix(prefix).Subrouter()
	}

	r.HandleFunc("/{identifier:.*}/info.json", InfoHandler)
	r.HandleFunc("/{identifier:.*}/{region}/{size}/{rotation}/{quality}", ImageHandler)
	r.HandleFunc("/{identifier:.*}", RedirectHandler)

	return router
}

// NewHandler builds the router with its middlewares.
func NewHandler(service *Service) http.Handler {
	var h http.Handler = WithService(MakeRouter(service.Prefix), service)
	if service.Metrics != nil {
		h = WithMetrics(h, service.Metrics)
	}
	return WithLogging(h)
}
