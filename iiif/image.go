package iiif

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/greut/iiif3/cache"
	"github.com/greut/iiif3/image"
)

// ImageHandler responds to the IIIF 3.0 Image API.
func ImageHandler(w http.ResponseWriter, r *http.Request) {
	vars, err := unescapeVars(mux.Vars(r))
	if err != nil {
		http.Error(w, HTTPError{http.StatusBadRequest, err.Error()}.Error(), http.StatusBadRequest)
		return
	}

	identifier := vars["identifier"]
	s := serviceFrom(r)

	req, err := image.ParseRequest(identifier, vars["region"], vars["size"], vars["rotation"], vars["quality"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.Key(req.Identifier(), req.Params())
	format := req.Format().Encoded()

	buffer, ok := s.Tiles.Get(key)
	if ok {
		zap.S().Debugw("cache hit", "key", key)
	} else {
		path, err := s.Resolver.Resolve(r.Context(), req.Identifier())
		if err != nil {
			writeError(w, r, err)
			return
		}

		start := time.Now()
		d, err := s.Pipeline.Process(r.Context(), path, req)
		s.Metrics.observe(time.Since(start).Seconds())
		if err != nil {
			writeError(w, r, err)
			return
		}

		s.Tiles.Set(key, d.Data)
		buffer = d.Data
		format = d.Format
	}

	filename := fmt.Sprintf("%v-%v-%v-%v-%v.%v", identifier, vars["region"], vars["size"], vars["rotation"],
		strings.TrimSuffix(vars["quality"], "."+req.Format().String()), format)
	filename = strings.NewReplacer("/", "_", ":", "_", ",", "").Replace(filename)

	disposition := "inline"
	if _, present := r.URL.Query()["dl"]; present {
		disposition = "attachment"
	}

	header := w.Header()
	header.Set("Content-Type", format.MediaType())
	header.Set("Content-Disposition", fmt.Sprintf("%s; filename=%s", disposition, filename))
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("ETag", getETag(buffer))
	header.Set("Cache-Control", fmt.Sprintf("max-age=%v, public", s.MaxAge))

	http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(buffer))
}

func getETag(buffer []byte) string {
	return fmt.Sprintf("\"%x\"", xxhash.Sum64(buffer))
}
