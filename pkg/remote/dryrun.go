package remote

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// DryRunExecutor prints state-changing commands instead of running them.
// Read-only commands and probes go to the wrapped executor so that output
// driven steps (interrupt discovery, module lookups) still plan correctly.
type DryRunExecutor struct {
	inner  Executor
	target Target
	out    io.Writer
}

var _ Executor = DryRunExecutor{}

func NewDryRunExecutor(inner Executor, target Target, out io.Writer) DryRunExecutor {
	return DryRunExecutor{inner: inner, target: target, out: out}
}

func (d DryRunExecutor) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ReadOnly {
		return d.inner.Run(ctx, cmd)
	}
	fmt.Fprintf(d.out, "[%s] %s\n", d.target.Label(), cmd.String())
	return Result{}, nil
}

func (d DryRunExecutor) Exists(ctx context.Context, path string) (bool, error) {
	return d.inner.Exists(ctx, path)
}

func (d DryRunExecutor) Contains(ctx context.Context, path string, text string) (bool, error) {
	return d.inner.Contains(ctx, path, text)
}

func (d DryRunExecutor) Sync(_ context.Context, spec SyncSpec) error {
	fmt.Fprintf(d.out, "[%s] %s\n", d.target.Label(), strings.Join(BuildRsyncArgs(d.target, spec), " "))
	return nil
}
