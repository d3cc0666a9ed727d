package session

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
	"github.com/nmlab/rigctl/pkg/remote/remotetest"
)

const sshConfig = `
Host c307 c307-alt
  Hostname c307.lab.example
  User root
  Port 2222
  IdentityFile ~/.ssh/lab
  ProxyJump gw.lab.example

Host node0
  Hostname node0.cloudlab.example
  StrictHostKeyChecking no

Host *
  ServerAliveInterval 30
`

func testResolver(t *testing.T, fs afero.Fs) TargetResolver {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, "/home/tester/.ssh/config", []byte(sshConfig), 0o600))
	return NewTargetResolver(fs, "~/.ssh/config", func() (string, error) { return "/home/tester", nil })
}

func TestProbeLinux(t *testing.T) {
	rec := remotetest.New().
		On("uname -s", "Linux\n").
		On("grep -c ^processor", "12\n").
		On("id -un", "luigi\n")

	facts, err := Probe(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Facts{OS: hostenv.Linux, CPUs: 12, User: "luigi"}, facts)
	assert.Empty(t, rec.Mutations())
}

func TestProbeFreeBSD(t *testing.T) {
	rec := remotetest.New().
		On("uname -s", "FreeBSD\n").
		On("sysctl -n hw.ncpu", "8\n").
		On("id -un", "root\n")

	facts, err := Probe(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, hostenv.FreeBSD, facts.OS)
	assert.Equal(t, 8, facts.CPUs)
}

func TestProbeUnsupported(t *testing.T) {
	rec := remotetest.New().On("uname -s", "Darwin\n")
	_, err := Probe(context.Background(), rec)
	assert.ErrorIs(t, err, hostenv.ErrPrecondition)

	rec = remotetest.New().On("uname -s", "Linux\n").On("grep", "")
	_, err = Probe(context.Background(), rec)
	assert.ErrorIs(t, err, hostenv.ErrPrecondition)
}

// scriptedRunner answers ssh invocations by matching the remote line.
type scriptedRunner struct {
	answers map[string]string
	argv    [][]string
}

func (s *scriptedRunner) Run(_ context.Context, argv []string) (remote.Output, error) {
	s.argv = append(s.argv, argv)
	line := argv[len(argv)-1]
	for needle, out := range s.answers {
		if strings.Contains(line, needle) {
			return remote.Output{Stdout: out}, nil
		}
	}
	return remote.Output{}, nil
}

func TestOpen(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]string{
		"uname -s": "Linux\n",
		"grep -c":  "4\n",
		"id -un":   "root\n",
	}}
	opener := NewOpener(testResolver(t, afero.NewMemMapFs()), hostenv.NewResolver(zap.NewNop()), runner, zap.NewNop())

	s, err := opener.Open(context.Background(), "c307")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "c307", s.Config.Identity)
	assert.Equal(t, 4, s.Config.CPUs)
	assert.Equal(t, "/root", s.Config.HomeDir())
	assert.Equal(t, "c307.lab.example", s.Target.Hostname)
	require.Len(t, runner.argv, 3)
	assert.Contains(t, runner.argv[0], "root@c307.lab.example")

	other, err := opener.Open(context.Background(), "c307")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestOpenDryRun(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]string{
		"uname -s": "Linux\n",
		"grep -c":  "2\n",
		"id -un":   "root\n",
	}}
	var out bytes.Buffer
	opener := NewOpener(testResolver(t, afero.NewMemMapFs()), hostenv.NewResolver(zap.NewNop()), runner, zap.NewNop()).
		WithDryRun(&out)

	s, err := opener.Open(context.Background(), "node0")
	require.NoError(t, err)
	_, err = s.Exec.Run(context.Background(), remote.Sudo("ip link set enp6s0f0 up"))
	require.NoError(t, err)
	assert.Equal(t, "[node0] sudo ip link set enp6s0f0 up\n", out.String())
	assert.Len(t, runner.argv, 3)
}

func TestOpenProbeFailure(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]string{"uname -s": "SunOS\n"}}
	opener := NewOpener(testResolver(t, afero.NewMemMapFs()), hostenv.NewResolver(zap.NewNop()), runner, zap.NewNop())
	_, err := opener.Open(context.Background(), "c307")
	assert.ErrorIs(t, err, hostenv.ErrPrecondition)
}
