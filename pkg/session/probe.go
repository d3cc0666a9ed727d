package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
)

// Facts are what a host reports about itself before it can be resolved.
type Facts struct {
	OS   hostenv.OSKind
	CPUs int
	User string
}

// Probe asks the host for its kernel name, online CPU count and login user.
func Probe(ctx context.Context, exec remote.Executor) (Facts, error) {
	uname, err := exec.Run(ctx, remote.Query("uname -s"))
	if err != nil {
		return Facts{}, breverrors.WrapAndTrace(err)
	}
	kind, err := hostenv.ParseOS(uname.Stdout)
	if err != nil {
		return Facts{}, breverrors.WrapAndTrace(breverrors.Join(hostenv.ErrPrecondition, err))
	}

	count := "grep -c ^processor /proc/cpuinfo"
	if kind == hostenv.FreeBSD {
		count = "sysctl -n hw.ncpu"
	}
	res, err := exec.Run(ctx, remote.Query(count))
	if err != nil {
		return Facts{}, breverrors.WrapAndTrace(err)
	}
	cpus, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return Facts{}, breverrors.WrapAndTrace(fmt.Errorf("%w: cannot read CPU count from %q", hostenv.ErrPrecondition, strings.TrimSpace(res.Stdout)))
	}

	who, err := exec.Run(ctx, remote.Query("id -un"))
	if err != nil {
		return Facts{}, breverrors.WrapAndTrace(err)
	}

	return Facts{OS: kind, CPUs: cpus, User: strings.TrimSpace(who.Stdout)}, nil
}
