package browser

import (
	"context"
	"errors"
	"sync"
)

var errEmptyHolder = errors.New("lease holder cannot be empty")

// Lease grants one holder exclusive use of a shared resource across several
// operations. Acquire is reentrant for the current holder.
type Lease struct {
	sem    chan struct{}
	holder string
	mu     sync.Mutex
}

// NewLease creates a free lease.
func NewLease() *Lease {
	return &Lease{sem: make(chan struct{}, 1)}
}

// Acquire blocks until holder owns the lease or ctx is done. holder must
// not be empty.
func (l *Lease) Acquire(ctx context.Context, holder string) error {
	if holder == "" {
		return errEmptyHolder
	}
	l.mu.Lock()
	if l.holder == holder {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		l.mu.Lock()
		l.holder = holder
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lease if holder owns it. Releasing a lease one does not
// hold is a no-op.
func (l *Lease) Release(holder string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder == "" || l.holder != holder {
		return
	}
	l.holder = ""
	<-l.sem
}

// Holder returns the current holder, or "" when free.
func (l *Lease) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}
