package remote

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

// ssh exits with 255 when the connection itself fails.
const sshTransportFailure = 255

// Target is an ssh destination resolved from the user's ssh config.
type Target struct {
	Alias        string
	Hostname     string
	User         string
	Port         int
	IdentityFile string
	Options      map[string]string
}

func (t Target) Label() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Hostname
}

// Destination is the [user@]host argument handed to ssh.
func (t Target) Destination() string {
	host := t.Hostname
	if host == "" {
		host = t.Alias
	}
	if t.User == "" {
		return host
	}
	return t.User + "@" + host
}

// Output is what a local process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts local processes. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, argv []string) (Output, error)
}

type ProcessRunner struct{}

// Run returns a nil error for processes that ran and exited non-zero; the
// status is in Output.ExitCode.
func (ProcessRunner) Run(ctx context.Context, argv []string) (Output, error) {
	if len(argv) == 0 {
		return Output{}, breverrors.WrapAndTrace(fmt.Errorf("no command provided"))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv is built by this package
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: strings.TrimSpace(stderr.String())}
	if err != nil {
		var exitErr *exec.ExitError
		if breverrors.As(err, &exitErr) && ctx.Err() == nil {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, breverrors.WrapAndTrace(err)
	}
	return out, nil
}

// SSHExecutor runs commands through the system ssh client.
type SSHExecutor struct {
	target Target
	runner Runner
	log    *zap.Logger
}

var _ Executor = SSHExecutor{}

func NewSSHExecutor(target Target, runner Runner, log *zap.Logger) SSHExecutor {
	return SSHExecutor{
		target: target,
		runner: runner,
		log:    log.Named("remote"),
	}
}

func (e SSHExecutor) Run(ctx context.Context, cmd Command) (Result, error) {
	res, err := e.exec(ctx, cmd)
	if err != nil {
		return res, err
	}
	if !res.Failed() {
		e.log.Debug("ran", zap.String("command", cmd.String()))
		return res, nil
	}
	if cmd.Warn {
		e.log.Warn("command failed, continuing",
			zap.String("command", cmd.String()),
			zap.Int("status", res.ExitCode),
			zap.String("stderr", res.Stderr),
		)
		return res, nil
	}
	return res, &ExitError{Host: e.target.Label(), Command: cmd, Result: res}
}

func (e SSHExecutor) exec(ctx context.Context, cmd Command) (Result, error) {
	out, err := e.runner.Run(ctx, BuildSSHArgs(e.target, cmd))
	if err != nil {
		return Result{}, breverrors.WrapAndTrace(err, e.target.Label())
	}
	if out.ExitCode == sshTransportFailure {
		return Result{}, &TransportError{Host: e.target.Label(), Detail: out.Stderr}
	}
	return Result(out), nil
}

func (e SSHExecutor) Exists(ctx context.Context, path string) (bool, error) {
	res, err := e.exec(ctx, Query("test -e "+shellescape.Quote(path)))
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &ExitError{Host: e.target.Label(), Command: Query("test -e " + path), Result: res}
	}
}

// Contains reports whether the file holds text. A missing file does not contain anything.
func (e SSHExecutor) Contains(ctx context.Context, path string, text string) (bool, error) {
	res, err := e.exec(ctx, Query(fmt.Sprintf("grep -qF -- %s %s", shellescape.Quote(text), shellescape.Quote(path))))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func (e SSHExecutor) Sync(ctx context.Context, spec SyncSpec) error {
	argv := BuildRsyncArgs(e.target, spec)
	e.log.Info("syncing", zap.String("source", spec.Source), zap.String("dest", spec.Dest))
	out, err := e.runner.Run(ctx, argv)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if out.ExitCode != 0 {
		return breverrors.WrapAndTrace(fmt.Errorf("rsync to %s exited with status %d: %s", e.target.Label(), out.ExitCode, out.Stderr))
	}
	return nil
}

// RemoteLine is the shell line ssh hands to the remote login shell.
func RemoteLine(cmd Command) string {
	quoted := shellescape.Quote(cmd.Line)
	if cmd.Sudo {
		return "sudo -n sh -c " + quoted
	}
	return "sh -c " + quoted
}

func transportArgs(target Target) []string {
	var args []string
	if target.IdentityFile != "" {
		args = append(args, "-i", target.IdentityFile)
	}
	if target.Port > 0 {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	args = append(args, "-o", "BatchMode=yes")

	if len(target.Options) > 0 {
		keys := make([]string, 0, len(target.Options))
		for k := range target.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			args = append(args, "-o", fmt.Sprintf("%s=%s", key, target.Options[key]))
		}
	}
	return args
}

func BuildSSHArgs(target Target, cmd Command) []string {
	args := append([]string{"ssh"}, transportArgs(target)...)
	return append(args, target.Destination(), "--", RemoteLine(cmd))
}

func BuildRsyncArgs(target Target, spec SyncSpec) []string {
	args := []string{"rsync", "-azl"}
	if spec.Delete {
		args = append(args, "--delete")
	}
	for _, pattern := range spec.Exclude {
		args = append(args, "--exclude="+pattern)
	}
	sshCmd := append([]string{"ssh"}, transportArgs(target)...)
	args = append(args, "-e", strings.Join(sshCmd, " "))

	src := spec.Source
	if !strings.HasSuffix(src, "/") {
		src += "/"
	}
	return append(args, src, target.Destination()+":"+spec.Dest)
}
