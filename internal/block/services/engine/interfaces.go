package engine

import (
	"context"

	"github.com/haukened/restraint/internal/block/domain"
)

// HostsStore is the only path through which the engine touches the hosts file.
type HostsStore interface {
	ReadAll(ctx context.Context) (string, error)
	// StageCopy prepares the file that Commit will write, returning its path.
	StageCopy(ctx context.Context) (string, error)
	Commit(ctx context.Context, content string) error
	// Discard removes any staged copy left by StageCopy.
	Discard() error
}

// RegionCodec encodes and removes the marker-delimited block region. It does no I/O.
type RegionCodec interface {
	Encode(domains domain.DomainList) domain.BlockRegion
	Apply(content string, region domain.BlockRegion) string
	Contains(content string) bool
	Strip(content string) (cleaned string, found bool, err error)
}

// LockStore persists the active session. Its presence means a block is active.
type LockStore interface {
	Write(sess domain.BlockSession) error
	Read() (sess domain.BlockSession, ok bool, err error)
	Clear() error
}

// StatusSink receives one status snapshot per tick.
type StatusSink interface {
	Publish(status domain.Status)
}

// StatusFunc adapts a plain function to StatusSink.
type StatusFunc func(domain.Status)

// Publish calls f(status).
func (f StatusFunc) Publish(status domain.Status) { f(status) }
