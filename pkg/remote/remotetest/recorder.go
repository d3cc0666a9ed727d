// Package remotetest provides an in-memory remote.Executor for tests.
package remotetest

import (
	"context"
	"strings"
	"sync"

	"github.com/nmlab/rigctl/pkg/remote"
)

type response struct {
	prefix string
	result remote.Result
}

// Recorder records every command it is asked to run and answers from a
// script of prefix-matched responses. Unmatched commands succeed with empty
// output.
type Recorder struct {
	mu        sync.Mutex
	Commands  []remote.Command
	Syncs     []remote.SyncSpec
	responses []response
	files     map[string]bool
	contents  map[string]string
}

var _ remote.Executor = &Recorder{}

func New() *Recorder {
	return &Recorder{
		files:    map[string]bool{},
		contents: map[string]string{},
	}
}

// On answers commands whose line starts with prefix with stdout.
func (r *Recorder) On(prefix string, stdout string) *Recorder {
	r.responses = append(r.responses, response{prefix: prefix, result: remote.Result{Stdout: stdout}})
	return r
}

// Fail makes commands starting with prefix exit with status.
func (r *Recorder) Fail(prefix string, status int) *Recorder {
	r.responses = append(r.responses, response{prefix: prefix, result: remote.Result{ExitCode: status, Stderr: "failed"}})
	return r
}

// WithFile makes path exist on the fake host.
func (r *Recorder) WithFile(path string, content string) *Recorder {
	r.files[path] = true
	r.contents[path] = content
	return r
}

func (r *Recorder) Run(_ context.Context, cmd remote.Command) (remote.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, cmd)

	res := remote.Result{}
	for _, resp := range r.responses {
		if strings.HasPrefix(cmd.Line, resp.prefix) {
			res = resp.result
			break
		}
	}
	if res.Failed() && !cmd.Warn {
		return res, &remote.ExitError{Host: "fake", Command: cmd, Result: res}
	}
	return res, nil
}

func (r *Recorder) Exists(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, remote.Query("test -e "+path))
	return r.files[path], nil
}

func (r *Recorder) Contains(_ context.Context, path string, text string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, remote.Query("grep -qF "+text+" "+path))
	return strings.Contains(r.contents[path], text), nil
}

func (r *Recorder) Sync(_ context.Context, spec remote.SyncSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Syncs = append(r.Syncs, spec)
	return nil
}

// Lines returns the recorded command lines in issue order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		lines = append(lines, c.Line)
	}
	return lines
}

// Mutations returns the recorded lines of commands that change host state.
func (r *Recorder) Mutations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lines []string
	for _, c := range r.Commands {
		if !c.ReadOnly {
			lines = append(lines, c.Line)
		}
	}
	return lines
}
