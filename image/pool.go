package image

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

type job struct {
	fn   func() error
	done chan error
}

// Pool runs CPU bound work on a fixed number of goroutines so the request
// goroutines only wait on it.
type Pool struct {
	jobs chan job
	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	size int
}

// NewPool starts n workers, or one per usable CPU when n <= 0.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		jobs: make(chan job),
		quit: make(chan struct{}),
		size: n,
	}

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.work()
	}

	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			j.done <- run(j.fn)
		}
	}
}

func run(fn func() error) (err error) {
	defer func() {
		if pnk := recover(); pnk != nil {
			err = fmt.Errorf("panic at runtime: %v", pnk)
		}
	}()
	return fn()
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn on a worker and waits for it. When ctx ends first, Do returns
// the context error; fn may still run to completion in the background.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	case p.jobs <- j:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-j.done:
		return err
	}
}

// Close stops the workers once their current job is done.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
