package source

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Local looks up the files under a root directory.
type Local struct {
	root string
	hits atomic.Uint64
}

// NewLocal creates a source rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Lookup implements Source. Directories are not images.
func (l *Local) Lookup(ctx context.Context, name string) (string, error) {
	p := safeJoin(l.root, name)
	if !isFile(p) {
		return "", fmt.Errorf("%w: %#v", ErrNotFound, name)
	}

	l.hits.Add(1)
	return p, nil
}
