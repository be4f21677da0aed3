// Package source finds the file behind an identifier, on the local disk or
// on a remote origin mirrored into a proxy directory.
package source

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"

	iiifimage "github.com/greut/iiif3/image"
)

// ErrNotFound is returned when no source has the identifier.
var ErrNotFound = errors.New("image not found")

// Source finds a file by name.
type Source interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Stats counts the resolutions.
type Stats struct {
	LocalHits   uint64
	ProxyHits   uint64
	Fetches     uint64
	FetchErrors uint64
}

// Resolver tries the local root then the remote origin, if any.
type Resolver struct {
	local  *Local
	remote *Remote
}

// New creates a resolver. remote may be nil.
func New(local *Local, remote *Remote) *Resolver {
	return &Resolver{
		local:  local,
		remote: remote,
	}
}

// Resolve returns the path of the file backing the identifier. The page
// selector is ignored, all the pages live in the same file.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	name := iiifimage.BaseIdentifier(identifier)

	p, err := r.local.Lookup(ctx, name)
	if err == nil || !errors.Is(err, ErrNotFound) || r.remote == nil {
		return p, err
	}

	return r.remote.Lookup(ctx, name)
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	s := Stats{
		LocalHits: r.local.hits.Load(),
	}
	if r.remote != nil {
		s.ProxyHits = r.remote.hits.Load()
		s.Fetches = r.remote.fetches.Load()
		s.FetchErrors = r.remote.errors.Load()
	}
	return s
}

// safeJoin keeps name within root, whatever the dots it contains.
func safeJoin(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+name)))
}

// isFile tells whether path is an existing regular file.
func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
