package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/restraint/internal/block/common/clock"
	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/repos/hostsfile"
	"github.com/haukened/restraint/internal/block/repos/region"
	"github.com/haukened/restraint/internal/block/repos/session"
)

// systemHosts mimics a real hosts file: comments, CRLF-free, no trailing blank line.
const systemHosts = "# /etc/hosts\n127.0.0.1\tlocalhost\n127.0.1.1\tworkstation\n\n# The following lines are desirable for IPv6 capable hosts\n::1     ip6-localhost ip6-loopback\n"

type stack struct {
	hostsPath string
	lock      *session.BoltStore
	hosts     *hostsfile.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()
	hostsPath := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(hostsPath, []byte(systemHosts), 0o644))
	hosts, err := hostsfile.New(hostsfile.Options{Path: hostsPath, Mode: hostsfile.ModeDirect})
	require.NoError(t, err)
	lock, err := session.New(filepath.Join(dir, "state", "session.db"), log.NewNoopLogger())
	require.NoError(t, err)
	return &stack{hostsPath: hostsPath, lock: lock, hosts: hosts}
}

func (s *stack) engine(t *testing.T, clk clock.Clock) *Engine {
	t.Helper()
	eng, err := New(Options{Hosts: s.hosts, Codec: region.NewCodec(), Lock: s.lock, Clock: clk})
	require.NoError(t, err)
	return eng
}

func (s *stack) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(s.hostsPath)
	require.NoError(t, err)
	return string(data)
}

func TestEndToEnd_OneSecondBlock(t *testing.T) {
	s := newStack(t)
	clk := &clock.MockClock{CurrentTime: epoch}
	eng := s.engine(t, clk)
	require.NoError(t, eng.RecoverOnStartup(context.Background()))

	domains, err := domain.NewDomainList([]string{"example.com", "www.reddit.com"})
	require.NoError(t, err)
	_, err = eng.Start(context.Background(), domains, time.Second)
	require.NoError(t, err)

	blocked := s.read(t)
	assert.Contains(t, blocked, "0.0.0.0\treddit.com\n")
	_, ok, err := s.lock.Read()
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(time.Second)
	require.NoError(t, eng.ProcessExpiries(context.Background()))
	assert.Equal(t, systemHosts, s.read(t))
	_, ok, err = s.lock.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndToEnd_RealClockRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall-clock test in short mode")
	}
	s := newStack(t)
	eng := s.engine(t, clock.RealClock{})
	domains, err := domain.NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	_, err = eng.Start(context.Background(), domains, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Run(ctx, 50*time.Millisecond, nil))
	assert.Equal(t, systemHosts, s.read(t))
}

func TestEndToEnd_RecoveryAcrossProcesses(t *testing.T) {
	s := newStack(t)
	clk := &clock.MockClock{CurrentTime: epoch}
	domains, err := domain.NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	_, err = s.engine(t, clk).Start(context.Background(), domains, 15*time.Minute)
	require.NoError(t, err)

	// process restarts after five minutes: still blocked, about ten minutes left
	clk.Advance(5 * time.Minute)
	resumed := s.engine(t, clk)
	require.NoError(t, resumed.RecoverOnStartup(context.Background()))
	assert.Equal(t, domain.StateActive, resumed.State())
	assert.InDelta(t, (10 * time.Minute).Seconds(), resumed.Status().Remaining.Seconds(), 1)
	assert.True(t, region.NewCodec().Contains(s.read(t)))

	// the next restart is after expiry: restored during recovery
	clk.Advance(time.Hour)
	late := s.engine(t, clk)
	require.NoError(t, late.RecoverOnStartup(context.Background()))
	assert.Equal(t, domain.StateIdle, late.State())
	assert.Equal(t, systemHosts, s.read(t))
	_, ok, err := s.lock.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndToEnd_StartWhileActiveLeavesFile(t *testing.T) {
	s := newStack(t)
	clk := &clock.MockClock{CurrentTime: epoch}
	domains, err := domain.NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	_, err = s.engine(t, clk).Start(context.Background(), domains, time.Hour)
	require.NoError(t, err)
	before := s.read(t)

	// a second process that never recovered still sees the lock
	other := s.engine(t, clk)
	_, err = other.Start(context.Background(), domains, time.Hour)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)
	assert.Equal(t, before, s.read(t))
}
