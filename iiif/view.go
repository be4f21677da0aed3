package iiif

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

func unescapeVars(vars map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		u, err := url.PathUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("cannot unescape %s %#v: %w", k, v, err)
		}
		out[k] = u
	}
	return out, nil
}

// IndexHandler tells the server is alive.
func IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "IIIF Image API 3.0 server is running")
}

// baseURL returns the public root of the service as seen by the client.
func baseURL(r *http.Request, prefix string) string {
	scheme := "https"

	if r.TLS == nil {
		scheme = "http"
	}
	if r.Header.Get("X-Forwarded-Proto") != "" {
		scheme = r.Header.Get("X-Forwarded-Proto")
	}

	host := r.Host
	if r.Header.Get("X-Forwarded-Host") != "" {
		host = r.Header.Get("X-Forwarded-Host")
	}

	return fmt.Sprintf("%s://%s%s/", scheme, host, strings.TrimSuffix(prefix, "/"))
}

// RedirectHandler sends the bare identifiers to their technical properties.
func RedirectHandler(w http.ResponseWriter, r *http.Request) {
	vars, err := unescapeVars(mux.Vars(r))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	prefix := ""
	if s := serviceFrom(r); s != nil {
		prefix = s.Prefix
	}

	identifier := (&url.URL{Path: vars["identifier"]}).EscapedPath()
	http.Redirect(w, r, baseURL(r, prefix)+identifier+"/info.json", http.StatusSeeOther)
}

// InfoHandler responds to the image technical properties.
func InfoHandler(w http.ResponseWriter, r *http.Request) {
	vars, err := unescapeVars(mux.Vars(r))
	if err != nil {
		http.Error(w, HTTPError{http.StatusBadRequest, err.Error()}.Error(), http.StatusBadRequest)
		return
	}

	identifier := vars["identifier"]
	s := serviceFrom(r)
	ctx := r.Context()

	path, err := s.Resolver.Resolve(ctx, identifier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	base := s.Profiles.BaseURL()
	if base == "" {
		base = baseURL(r, s.Prefix)
	}

	info, err := s.Profiles.BuildFor(ctx, base, path, identifier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	buffer, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		http.Error(w, "Cannot create profile", http.StatusInternalServerError)
		return
	}

	header := w.Header()

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/ld+json") {
		header.Set("Content-Type", "application/ld+json")
	} else {
		header.Set("Content-Type", "application/json")
	}
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	header.Set("ETag", getETag(buffer))
	header.Set("Cache-Control", fmt.Sprintf("max-age=%v, public", s.MaxAge))
	http.ServeContent(w, r, "info.json", time.Time{}, bytes.NewReader(buffer))
}
