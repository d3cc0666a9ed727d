package util

import (
	"context"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/nic"
	"github.com/nmlab/rigctl/pkg/session"
	"github.com/nmlab/rigctl/pkg/terminal"
)

// ForEachSession opens a session per host and hands it to fn, running hosts
// concurrently up to the configured limit.
func ForEachSession(ctx context.Context, t *terminal.Terminal, env *cmdcontext.Env, hosts []string, fn func(ctx context.Context, s *session.Session) error) error {
	opener := env.Opener(t.Out())
	return RunOnHosts(ctx, t, hosts, env.Config.Parallel, func(ctx context.Context, host string) error {
		s, err := opener.Open(ctx, host)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		return fn(ctx, s)
	})
}

// NICFlags are the interface, profile and queue selectors shared by the
// commands that tune NICs.
type NICFlags struct {
	Interfaces []string
	Profiles   []string
	Queues     int

	withProfiles bool
	cmd          *cobra.Command
}

func (f *NICFlags) AddTo(cmd *cobra.Command, withProfiles bool) {
	f.cmd = cmd
	f.withProfiles = withProfiles
	cmd.Flags().StringSliceVar(&f.Interfaces, "if", nil, "interfaces to configure (default: all configured for the host)")
	if withProfiles {
		cmd.Flags().StringSliceVarP(&f.Profiles, "profile", "p", nil, "profiles to apply, in order (default: the host's profiles)")
		cmd.Flags().IntVarP(&f.Queues, "queues", "q", 0, "queue count for profiles that take one (default: the host's CPU count)")
	}
}

func (f *NICFlags) Options() nic.Options {
	opts := nic.Options{
		Interfaces: f.Interfaces,
		Profiles:   f.Profiles,
	}
	if f.withProfiles && f.cmd != nil && f.cmd.Flags().Changed("queues") {
		opts.Queues = mo.Some(f.Queues)
	}
	return opts
}
