package session

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
)

// Session is one host opened for a command run. Its Config is resolved from
// probed facts and is not modified afterwards.
type Session struct {
	ID     string
	Host   string
	Target remote.Target
	Exec   remote.Executor
	Config *hostenv.HostConfig
	Facts  Facts
	Log    *zap.Logger
}

type Opener struct {
	targets  TargetResolver
	resolver hostenv.Resolver
	runner   remote.Runner
	log      *zap.Logger
	dryRun   io.Writer
}

func NewOpener(targets TargetResolver, resolver hostenv.Resolver, runner remote.Runner, log *zap.Logger) Opener {
	return Opener{
		targets:  targets,
		resolver: resolver,
		runner:   runner,
		log:      log,
	}
}

// WithDryRun prints state-changing commands to out instead of running them.
// Probes still reach the host.
func (o Opener) WithDryRun(out io.Writer) Opener {
	o.dryRun = out
	return o
}

// Open connects to host, probes it and resolves its configuration.
func (o Opener) Open(ctx context.Context, host string) (*Session, error) {
	target, err := o.targets.Target(host)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	id := uuid.New().String()
	log := o.log.With(zap.String("host", host), zap.String("session", id))

	var exec remote.Executor = remote.NewSSHExecutor(target, o.runner, log)
	facts, err := Probe(ctx, exec)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err, host)
	}
	log.Debug("probed host",
		zap.Stringer("os", facts.OS),
		zap.Int("cpus", facts.CPUs),
		zap.String("user", facts.User),
	)

	cfg, err := o.resolver.Resolve(host, facts.OS, facts.CPUs, facts.User)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}

	if o.dryRun != nil {
		exec = remote.NewDryRunExecutor(exec, target, o.dryRun)
	}

	return &Session{
		ID:     id,
		Host:   host,
		Target: target,
		Exec:   exec,
		Config: cfg,
		Facts:  facts,
		Log:    log,
	}, nil
}
