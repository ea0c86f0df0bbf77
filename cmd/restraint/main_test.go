package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/restraint/internal/block/cli"
	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/config"
	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/repos/region"
)

const testHosts = "127.0.0.1\tlocalhost\n::1\tlocalhost ip6-localhost\n"

// testEnv points restraint at a temporary hosts file and state directory.
func testEnv(t *testing.T) (hostsPath, stateDir string) {
	t.Helper()
	orig := log.GetLogger()
	t.Cleanup(func() { log.SetLogger(orig) })

	dir := t.TempDir()
	hostsPath = filepath.Join(dir, "hosts")
	stateDir = filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(hostsPath, []byte(testHosts), 0o644))
	t.Setenv("RESTRAINT_HOSTS_PATH", hostsPath)
	t.Setenv("RESTRAINT_HOSTS_MODE", "direct")
	t.Setenv("RESTRAINT_STATE_DIR", stateDir)
	t.Setenv("RESTRAINT_LOG_LEVEL", "error")
	t.Setenv("RESTRAINT_TICK_INTERVAL", "50ms")
	return hostsPath, stateDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := cli.NewRootCommand(buildApplication, version)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuildApplication(t *testing.T) {
	testEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app.Engine)
	assert.NotNil(t, app.Hosts)
	assert.NotNil(t, app.Lock)
	assert.NotNil(t, app.Guard)
	assert.NotNil(t, app.Blocklist)
	assert.Equal(t, cfg.LockPath(), app.Lock.Path())
	assert.Equal(t, domain.StateIdle, app.Engine.State())
}

func TestBuildApplication_BadHostsMode(t *testing.T) {
	testEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.HostsMode = "sideways"
	_, err = buildApplication(cfg)
	assert.Error(t, err)
}

func TestCLI_Blocklist(t *testing.T) {
	_, stateDir := testEnv(t)

	out, err := run(t, "blocklist", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(stateDir, "blocklist.txt")+"\n", out)

	out, err = run(t, "blocklist", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "created")

	out, err = run(t, "blocklist", "add", "https://www.Reddit.com/r/all", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "added www.reddit.com")
	assert.Contains(t, out, "example.com is already listed")

	out, err = run(t, "blocklist", "remove", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "removed example.com")

	out, err = run(t, "blocklist", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 sites)")
	assert.Contains(t, out, "www.reddit.com")

	_, err = run(t, "blocklist", "add", "not a site")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCLI_StartValidation(t *testing.T) {
	hostsPath, _ := testEnv(t)

	_, err := run(t, "start", "--domain", "example.com")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = run(t, "start", "--domain", "example.com", "--duration", "48h")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = run(t, "start", "--domain", "com", "--duration", "1h")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = run(t, "start", "--steps", "-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, testHosts, readFile(t, hostsPath))
}

func TestCLI_DetachedBlock(t *testing.T) {
	hostsPath, _ := testEnv(t)

	out, err := run(t, "start", "--detach", "--steps", "4", "--domain", "example.com", "--domain", "www.reddit.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Blocking 2 sites for 1 hour")

	blocked := readFile(t, hostsPath)
	assert.Contains(t, blocked, region.StartMarker)
	assert.Contains(t, blocked, "0.0.0.0\treddit.com\n")

	out, err = run(t, "status", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Blocking:")
	assert.Contains(t, out, "example.com")

	_, err = run(t, "start", "--detach", "--duration", "10m", "--domain", "other.org")
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)
	assert.Equal(t, blocked, readFile(t, hostsPath))

	_, err = run(t, "repair")
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	out, err = run(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "Blocking:")
	assert.Equal(t, blocked, readFile(t, hostsPath))
}

func TestCLI_RepairOrphanRegion(t *testing.T) {
	hostsPath, _ := testEnv(t)
	codec := region.NewCodec()
	list, err := domain.NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(hostsPath, []byte(codec.Apply(testHosts, codec.Encode(list))), 0o644))

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "restraint repair")

	_, err = run(t, "start", "--detach", "--duration", "10m", "--domain", "example.com")
	assert.ErrorIs(t, err, domain.ErrInconsistentState)

	out, err = run(t, "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")
	assert.Equal(t, testHosts, readFile(t, hostsPath))

	out, err = run(t, "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to repair")
}

func TestCLI_StatusIdle(t *testing.T) {
	testEnv(t)
	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "No block active.\n", out)
}

func TestCLI_RecoverExpiredBlock(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping wall-clock test in short mode")
	}
	hostsPath, _ := testEnv(t)

	_, err := run(t, "start", "--detach", "--duration", "1s", "--domain", "example.com")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "expired")

	out, err = run(t, "recover")
	require.NoError(t, err)
	assert.Contains(t, out, "No block active.")
	assert.Equal(t, testHosts, readFile(t, hostsPath))
}
