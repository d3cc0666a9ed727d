package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/remote"
)

const sshConfig = `
Host c307
  Hostname c307.lab
  User root

Host c309
  Hostname c309.lab
  User root
`

// fakeRunner stands in for ssh and rsync. Hosts listed in down fail to connect.
type fakeRunner struct {
	mu   sync.Mutex
	argv [][]string
	down map[string]bool
	os   string
}

func (f *fakeRunner) Run(_ context.Context, argv []string) (remote.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.argv = append(f.argv, argv)

	for _, a := range argv {
		if f.down[a] {
			return remote.Output{ExitCode: 255, Stderr: "ssh: connect to host " + a + ": Connection refused"}, nil
		}
	}
	if argv[0] != "ssh" {
		return remote.Output{}, nil
	}

	line := argv[len(argv)-1]
	switch {
	case strings.Contains(line, "uname -s"):
		if f.os == "" {
			return remote.Output{Stdout: "Linux\n"}, nil
		}
		return remote.Output{Stdout: f.os + "\n"}, nil
	case strings.Contains(line, "grep -c ^processor"), strings.Contains(line, "hw.ncpu"):
		return remote.Output{Stdout: "4\n"}, nil
	case strings.Contains(line, "id -un"):
		return remote.Output{Stdout: "root\n"}, nil
	case strings.Contains(line, "test -e"), strings.Contains(line, "grep -qF"):
		return remote.Output{ExitCode: 1}, nil
	}
	return remote.Output{}, nil
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lines []string
	for _, argv := range f.argv {
		lines = append(lines, strings.Join(argv, " "))
	}
	return lines
}

type harness struct {
	env    *cmdcontext.Env
	runner *fakeRunner
	out    bytes.Buffer
	errOut bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/op/.ssh/config", []byte(sshConfig), 0o600))
	require.NoError(t, fs.MkdirAll("/src/netmap/.git", 0o755))

	h := &harness{runner: &fakeRunner{down: map[string]bool{}}}
	h.env = &cmdcontext.Env{Fs: fs, Runner: h.runner}
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRigCommand(h.env, &h.out, &h.errOut, t.TempDir())
	cmd.SetArgs(append([]string{"--ssh-config", "/home/op/.ssh/config", "--log-level", "error"}, args...))
	return cmd.Execute()
}

func TestShowOffline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "show", "c237", "--os", "FreeBSD", "--cpus", "8"))

	out := h.out.String()
	assert.Contains(t, out, "identity: c237")
	assert.Contains(t, out, "os: FreeBSD")
	assert.Contains(t, out, "cpus: 8")
	assert.Empty(t, h.runner.commands())
}

func TestShowOfflineNeedsCPUs(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "show", "c237", "--os", "linux")
	require.Error(t, err)
	assert.True(t, breverrors.IsValidationError(err))

	err = h.run(t, "show", "c237", "--os", "plan9", "--cpus", "2")
	assert.True(t, breverrors.IsValidationError(err))
}

func TestShowInterfaceSubset(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "show", "c307", "--os", "linux", "--cpus", "4", "--if", "enp3s0f0"))

	out := h.out.String()
	assert.Contains(t, out, "3c:fd:fe:a9:4e:24")
	assert.NotContains(t, out, "a0:36:9f:23:ac:54")

	err := h.run(t, "show", "c307", "--os", "linux", "--cpus", "4", "--if", "eth9")
	assert.True(t, breverrors.IsValidationError(err))
}

func TestShowProbes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "show", "c307"))
	assert.Contains(t, h.out.String(), "identity: c307")
	assert.Contains(t, h.out.String(), "cpus: 4")
	assert.Len(t, h.runner.commands(), 3)
}

func TestHosts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "hosts", "--ssh"))
	out := h.out.String()
	assert.Contains(t, out, "c307")
	assert.Contains(t, out, "c309")
	assert.NotContains(t, out, "c416")
	assert.Empty(t, h.runner.commands())
}

func TestSetupAddrDryRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "--dry-run", "setup-addr", "c307"))

	assert.Contains(t, h.out.String(), "[c307] sudo ip addr add 192.168.11.2/24 dev enp4s0f0\n")
	for _, line := range h.runner.commands() {
		assert.NotContains(t, line, "ip addr add")
	}
}

func TestSetupIfsRunsCommands(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "setup-ifs", "c307", "--if", "enp4s0f0", "-p", "mq", "-q", "2"))

	cmds := h.runner.commands()
	assert.Contains(t, cmds[3], "root@c307.lab")
	assert.Contains(t, cmds[3], "sudo -n sh -c 'ethtool -L enp4s0f0 combined 2'")
}

func TestMultipleHostsCollectErrors(t *testing.T) {
	h := newHarness(t)
	h.runner.down["c309.lab"] = true
	h.runner.down["root@c309.lab"] = true

	err := h.run(t, "-j", "2", "setup-addr", "c307", "c309")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c309")
	assert.NotContains(t, err.Error(), "c307:")
	assert.Contains(t, h.errOut.String(), "=== c309 ===")

	var added bool
	for _, line := range h.runner.commands() {
		if strings.Contains(line, "root@c307.lab") && strings.Contains(line, "ip addr add") {
			added = true
		}
	}
	assert.True(t, added)
}

func TestNoHosts(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "setup-ifs")
	require.Error(t, err)
	assert.True(t, breverrors.IsValidationError(err))
}

func TestPush(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "push", "netmap", "c307", "--from", "/src/netmap", "--delete"))

	cmds := h.runner.commands()
	last := cmds[len(cmds)-1]
	assert.True(t, strings.HasPrefix(last, "rsync -azl --delete --exclude=.git -e ssh"))
	assert.True(t, strings.HasSuffix(last, "/src/netmap/ root@c307.lab:/root/deployed/netmap"))
}

func TestPushEnablesNetmapDebug(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "push", "netmap", "c309", "--from", "/src/netmap", "--debug"))

	cmds := h.runner.commands()
	assert.True(t, strings.HasPrefix(cmds[len(cmds)-2], "ssh "))
	assert.Contains(t, cmds[len(cmds)-2], "grep -qF")
	assert.Contains(t, cmds[len(cmds)-1], "sed -i")
	assert.Contains(t, cmds[len(cmds)-1], "/root/deployed/netmap/sys/dev/netmap/netmap_kern.h")

	err := h.run(t, "push", "linux", "c309", "--from", "/src/netmap", "--debug")
	assert.True(t, breverrors.IsValidationError(err))
}

func TestPushRejectsMissingSource(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "push", "ovs", "c307", "--from", "/src/ovs")
	require.Error(t, err)
	assert.True(t, breverrors.IsValidationError(err))
	assert.Empty(t, h.runner.commands())
}

func TestUnloadNetmapNotLoaded(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "unload-netmap", "c309"))
	for _, line := range h.runner.commands() {
		assert.NotContains(t, line, "rmmod")
	}
}

func TestLoadNetmapMissingModule(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "load-netmap", "c309")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel module not found")
}
