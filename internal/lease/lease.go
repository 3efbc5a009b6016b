// Package lease provides the mutual-exclusion token held for the duration of
// one sync pass.
package lease

import (
	"context"
	"errors"
	"sync"
)

// ErrSyncInProgress is returned by Acquire while another holder owns the key.
var ErrSyncInProgress = errors.New("sync already in progress")

// Lease is a held lock. It expires on its own after the TTL it was acquired
// with, so a crashed holder cannot block the key forever.
type Lease struct {
	Key   string
	Token string

	once    sync.Once
	release func(ctx context.Context) error
}

// Release gives the key back. Releasing twice, or after the TTL already let
// another holder in, is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		err = l.release(ctx)
	})
	return err
}
