// Package cmdcontext holds what the subcommands share once the root command
// has loaded configuration.
package cmdcontext

import (
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nmlab/rigctl/pkg/config"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
	"github.com/nmlab/rigctl/pkg/session"
)

// Env is filled in by Load from the root command's PersistentPreRunE. Fs,
// Runner and In are set at construction so tests can substitute them.
type Env struct {
	Fs     afero.Fs
	Runner remote.Runner
	In     io.Reader
	Piped  bool

	Config   config.Config
	Log      *zap.Logger
	Resolver hostenv.Resolver
}

func (e *Env) Load(v *viper.Viper, logOut io.Writer) error {
	cfg, err := config.Load(v)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log, err := config.NewLogger(cfg.LogLevel, logOut)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	e.Config = cfg
	e.Log = log
	e.Resolver = hostenv.NewResolver(log)
	return nil
}

func (e *Env) Targets() session.TargetResolver {
	return session.NewDefaultTargetResolver(e.Fs, e.Config.SSHConfig).WithOptions(e.Config.TargetOptions())
}

// Opener opens sessions with the configured ssh settings. In dry-run mode
// state-changing commands are printed to out.
func (e *Env) Opener(out io.Writer) session.Opener {
	o := session.NewOpener(e.Targets(), e.Resolver, e.Runner, e.Log)
	if e.Config.DryRun {
		o = o.WithDryRun(out)
	}
	return o
}

// InvokeParentPersistentPreRun executes the immediate parent command's
// PersistentPreRunE and PersistentPreRun functions, in that order. If
// an error is returned from PersistentPreRunE, it is immediately returned.
func InvokeParentPersistentPreRun(cmd *cobra.Command, args []string) error {
	parentCmd := cmd.Parent()
	if parentCmd == nil {
		return nil
	}

	if parentCmd.PersistentPreRunE != nil {
		if err := parentCmd.PersistentPreRunE(parentCmd, args); err != nil {
			return breverrors.WrapAndTrace(err)
		}
	}
	if parentCmd.PersistentPreRun != nil {
		parentCmd.PersistentPreRun(parentCmd, args)
	}
	return nil
}
