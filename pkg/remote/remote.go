// Package remote runs shell commands on testbed hosts and synchronizes source
// trees to them.
package remote

import (
	"context"
	"fmt"
)

// Command is one shell line to run on a host.
type Command struct {
	Line string
	// Sudo runs the line with elevated privileges.
	Sudo bool
	// Warn tolerates a non-zero exit status: the failure is logged and the
	// result returned without error.
	Warn bool
	// ReadOnly marks commands that only inspect host state. Dry runs still
	// execute them.
	ReadOnly bool
}

func Run(line string) Command {
	return Command{Line: line}
}

func Sudo(line string) Command {
	return Command{Line: line, Sudo: true}
}

// Query is a read-only command whose output is consumed by the caller.
func Query(line string) Command {
	return Command{Line: line, ReadOnly: true}
}

// Tolerant returns a copy of c that does not fail on non-zero exit.
func (c Command) Tolerant() Command {
	c.Warn = true
	return c
}

func (c Command) String() string {
	if c.Sudo {
		return "sudo " + c.Line
	}
	return c.Line
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// ExitError reports a command that exited non-zero without Warn set.
type ExitError struct {
	Host    string
	Command Command
	Result  Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %q exited with status %d", e.Host, e.Command.String(), e.Result.ExitCode)
	if e.Result.Stderr != "" {
		msg += ": " + e.Result.Stderr
	}
	return msg
}

// TransportError reports that the host could not be reached at all.
type TransportError struct {
	Host   string
	Detail string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cannot reach %s: %s", e.Host, e.Detail)
}

func (e *TransportError) Directive() string {
	return "check the host entry in your ssh config and that the host is up"
}

// SyncSpec describes a local directory to mirror on the host.
type SyncSpec struct {
	Source  string
	Dest    string
	Delete  bool
	Exclude []string
}

// Executor is the contract the provisioning tasks rely on. Commands run
// strictly one at a time and each call blocks until the command finishes.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	Exists(ctx context.Context, path string) (bool, error)
	Contains(ctx context.Context, path string, text string) (bool, error)
	Sync(ctx context.Context, spec SyncSpec) error
}
