// Package loadnetmap holds the load-netmap and unload-netmap commands.
package loadnetmap

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmd/util"
	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/netmap"
	"github.com/nmlab/rigctl/pkg/session"
	"github.com/nmlab/rigctl/pkg/terminal"
)

var loadLong = `Replace the running netmap module and NIC drivers with the ones built in
the host's netmap tree, size netmap's private pools and set up the interfaces.
On FreeBSD only the pools and interfaces are configured.`

func NewCmdLoadNetmap(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	var flags util.NICFlags
	cmd := &cobra.Command{
		Use:                   "load-netmap [host...]",
		DisableFlagsInUseLine: true,
		Short:                 "Load netmap and its patched drivers",
		Long:                  loadLong,
		Example:               "  rigctl load-netmap c309 -p common,onload",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := util.GetHostNames(args, env.In, env.Piped)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			opts := flags.Options()
			err = util.ForEachSession(cmd.Context(), t, env, hosts, func(ctx context.Context, s *session.Session) error {
				report, err := netmap.NewLoader(s.Exec, s.Log).Load(ctx, s.Config, opts)
				if err != nil {
					return breverrors.WrapAndTrace(err)
				}
				terminal.DisplaySummary(t, s.Host, report.Issued, report.Failed)
				return nil
			})
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	flags.AddTo(cmd, true)
	return cmd
}

func NewCmdUnloadNetmap(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "unload-netmap [host...]",
		DisableFlagsInUseLine: true,
		Short:                 "Unload netmap and the modules using it",
		Long:                  "Unload netmap and the modules using it",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := util.GetHostNames(args, env.In, env.Piped)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			err = util.ForEachSession(cmd.Context(), t, env, hosts, func(ctx context.Context, s *session.Session) error {
				if err := netmap.NewLoader(s.Exec, s.Log).Unload(ctx, s.Config); err != nil {
					return breverrors.WrapAndTrace(err)
				}
				t.Vprintf("%s: %s\n", t.Blue(s.Host), t.Green("netmap unloaded"))
				return nil
			})
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	return cmd
}
