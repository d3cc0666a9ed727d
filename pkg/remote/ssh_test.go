package remote

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type capturingRunner struct {
	argv [][]string
	out  []Output
	err  error
}

func (c *capturingRunner) Run(_ context.Context, argv []string) (Output, error) {
	c.argv = append(c.argv, argv)
	if c.err != nil {
		return Output{}, c.err
	}
	if len(c.out) == 0 {
		return Output{}, nil
	}
	out := c.out[0]
	c.out = c.out[1:]
	return out, nil
}

func testTarget() Target {
	return Target{
		Alias:        "c307",
		Hostname:     "c307.lab",
		User:         "root",
		Port:         2222,
		IdentityFile: "/keys/id",
		Options: map[string]string{
			"StrictHostKeyChecking": "no",
			"ProxyJump":             "gw",
		},
	}
}

func TestBuildSSHArgs(t *testing.T) {
	args := BuildSSHArgs(testTarget(), Sudo("ethtool -K enp4s0f0 tso off"))
	require.Equal(t, []string{
		"ssh",
		"-i", "/keys/id",
		"-p", "2222",
		"-o", "BatchMode=yes",
		"-o", "ProxyJump=gw",
		"-o", "StrictHostKeyChecking=no",
		"root@c307.lab",
		"--",
		"sudo -n sh -c 'ethtool -K enp4s0f0 tso off'",
	}, args)
}

func TestBuildSSHArgsMinimalTarget(t *testing.T) {
	args := BuildSSHArgs(Target{Alias: "nina"}, Run("uname -s"))
	require.Equal(t, []string{"ssh", "-o", "BatchMode=yes", "nina", "--", "sh -c 'uname -s'"}, args)
}

func TestRemoteLineQuotesSingleQuotes(t *testing.T) {
	line := RemoteLine(Run("echo 'a b' > /tmp/x"))
	assert.Equal(t, `sh -c 'echo '"'"'a b'"'"' > /tmp/x'`, line)
}

func TestBuildRsyncArgs(t *testing.T) {
	args := BuildRsyncArgs(testTarget(), SyncSpec{
		Source:  "/src/netmap",
		Dest:    "/root/deployed/netmap",
		Delete:  true,
		Exclude: []string{".git"},
	})
	require.Equal(t, []string{
		"rsync", "-azl", "--delete", "--exclude=.git",
		"-e", "ssh -i /keys/id -p 2222 -o BatchMode=yes -o ProxyJump=gw -o StrictHostKeyChecking=no",
		"/src/netmap/",
		"root@c307.lab:/root/deployed/netmap",
	}, args)
}

func TestRunStrictFailureReturnsExitError(t *testing.T) {
	runner := &capturingRunner{out: []Output{{ExitCode: 2, Stderr: "no such device"}}}
	e := NewSSHExecutor(testTarget(), runner, zaptest.NewLogger(t))

	res, err := e.Run(context.Background(), Sudo("ip link set eth9 up"))
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Result.ExitCode)
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, err.Error(), "no such device")
}

func TestRunTolerantFailureLogsAndContinues(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	runner := &capturingRunner{out: []Output{{ExitCode: 1, Stderr: "Operation not supported"}}}
	e := NewSSHExecutor(testTarget(), runner, zap.New(core))

	res, err := e.Run(context.Background(), Sudo("ethtool -K eth0 lro off").Tolerant())
	require.NoError(t, err)
	assert.True(t, res.Failed())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sudo ethtool -K eth0 lro off", logs.All()[0].ContextMap()["command"])
}

func TestRunTransportFailureIsFatalEvenWhenTolerant(t *testing.T) {
	runner := &capturingRunner{out: []Output{{ExitCode: 255, Stderr: "Connection refused"}}}
	e := NewSSHExecutor(testTarget(), runner, zap.NewNop())

	_, err := e.Run(context.Background(), Sudo("ip link set eth0 up").Tolerant())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "c307", transportErr.Host)
}

func TestExists(t *testing.T) {
	runner := &capturingRunner{out: []Output{{ExitCode: 0}, {ExitCode: 1}, {ExitCode: 2}}}
	e := NewSSHExecutor(testTarget(), runner, zap.NewNop())
	ctx := context.Background()

	ok, err := e.Exists(ctx, "/root/deployed/netmap/netmap.ko")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Exists(ctx, "/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Exists(ctx, "/weird")
	assert.Error(t, err)

	assert.Equal(t, "sh -c 'test -e /root/deployed/netmap/netmap.ko'", runner.argv[0][len(runner.argv[0])-1])
}

func TestContains(t *testing.T) {
	runner := &capturingRunner{out: []Output{{ExitCode: 0}, {ExitCode: 1}, {ExitCode: 2}}}
	e := NewSSHExecutor(testTarget(), runner, zap.NewNop())
	ctx := context.Background()

	for _, want := range []bool{true, false, false} {
		got, err := e.Contains(ctx, "/etc/modules", "netmap")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSyncFailure(t *testing.T) {
	runner := &capturingRunner{out: []Output{{ExitCode: 23, Stderr: "partial transfer"}}}
	e := NewSSHExecutor(testTarget(), runner, zap.NewNop())

	err := e.Sync(context.Background(), SyncSpec{Source: "/src", Dest: "/dst"})
	require.Error(t, err)
	assert.Equal(t, "rsync", runner.argv[0][0])
}

func TestDryRunPrintsMutationsAndForwardsQueries(t *testing.T) {
	runner := &capturingRunner{out: []Output{{Stdout: "Linux\n"}}}
	inner := NewSSHExecutor(testTarget(), runner, zap.NewNop())
	var buf bytes.Buffer
	d := NewDryRunExecutor(inner, testTarget(), &buf)
	ctx := context.Background()

	res, err := d.Run(ctx, Query("uname -s"))
	require.NoError(t, err)
	assert.Equal(t, "Linux\n", res.Stdout)

	_, err = d.Run(ctx, Sudo("ip addr add 192.168.11.2/24 dev enp4s0f0").Tolerant())
	require.NoError(t, err)
	require.NoError(t, d.Sync(ctx, SyncSpec{Source: "/src", Dest: "/dst"}))

	assert.Len(t, runner.argv, 1)
	assert.Contains(t, buf.String(), "[c307] sudo ip addr add 192.168.11.2/24 dev enp4s0f0\n")
	assert.Contains(t, buf.String(), "[c307] rsync -azl")
}
