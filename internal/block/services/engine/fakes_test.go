package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/haukened/restraint/internal/block/domain"
)

// memHosts is an in-memory HostsStore.
type memHosts struct {
	mu         sync.Mutex
	content    string
	readErr    error
	stageErr   error
	commitErrs []error // consumed one per Commit call
	commits    int
	discards   int
}

func (h *memHosts) ReadAll(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content, h.readErr
}

func (h *memHosts) StageCopy(context.Context) (string, error) {
	if h.stageErr != nil {
		return "", h.stageErr
	}
	return "/tmp/hosts.staged", nil
}

func (h *memHosts) Commit(_ context.Context, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits++
	if len(h.commitErrs) > 0 {
		err := h.commitErrs[0]
		h.commitErrs = h.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	h.content = content
	return nil
}

func (h *memHosts) Discard() error {
	h.discards++
	return nil
}

func (h *memHosts) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content
}

// memLock is an in-memory LockStore.
type memLock struct {
	mu       sync.Mutex
	sess     *domain.BlockSession
	corrupt  bool
	writeErr error
	clearErr error
	clears   int
}

func (l *memLock) Write(sess domain.BlockSession) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.sess = &sess
	return nil
}

func (l *memLock) Read() (domain.BlockSession, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.corrupt {
		return domain.BlockSession{}, false, errors.Join(domain.ErrLockCorrupt, errors.New("bad format"))
	}
	if l.sess == nil {
		return domain.BlockSession{}, false, nil
	}
	return *l.sess, true, nil
}

func (l *memLock) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clears++
	if l.clearErr != nil {
		return l.clearErr
	}
	l.sess = nil
	l.corrupt = false
	return nil
}

func (l *memLock) present() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil
}

// recordingSink collects published statuses.
type recordingSink struct {
	mu       sync.Mutex
	statuses []domain.Status
}

func (s *recordingSink) Publish(st domain.Status) {
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
}

func (s *recordingSink) all() []domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Status(nil), s.statuses...)
}
