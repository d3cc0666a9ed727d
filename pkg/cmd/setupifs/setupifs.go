// Package setupifs holds the commands that tune NICs on running hosts.
package setupifs

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmd/util"
	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/nic"
	"github.com/nmlab/rigctl/pkg/session"
	"github.com/nmlab/rigctl/pkg/terminal"
)

var (
	setupIfsLong = `Apply NIC tuning profiles, pin queue interrupts to cores and assign
interface addresses, in that order. Failing commands are reported and skipped.`

	setupIfsExample = `  # everything configured for c307
  rigctl setup-ifs c307

  # only the onload and mq profiles on one interface, 4 queues
  rigctl setup-ifs c307 --if enp4s0f0 -p onload,mq -q 4

  # several hosts
  rigctl hosts | grep ^c4 | rigctl setup-ifs`
)

type step func(ctx context.Context, a nic.Applier, s *session.Session, opts nic.Options) (nic.Report, error)

func NewCmdSetupIfs(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	return newCmd(t, env, "setup-ifs", "Tune interfaces, pin interrupts and assign addresses", setupIfsLong, setupIfsExample, true,
		func(ctx context.Context, a nic.Applier, s *session.Session, opts nic.Options) (nic.Report, error) {
			return a.SetupInterfaces(ctx, s.Config, opts)
		})
}

func NewCmdSetupIRQ(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	return newCmd(t, env, "setup-irq", "Pin interface queue interrupts to cores", "", "  rigctl setup-irq c416 --if enp1s0f0", false,
		func(ctx context.Context, a nic.Applier, s *session.Session, opts nic.Options) (nic.Report, error) {
			return a.AssignIRQAffinity(ctx, s.Config, opts.Interfaces)
		})
}

func NewCmdSetupAddr(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	return newCmd(t, env, "setup-addr", "Assign the configured interface addresses", "", "  rigctl setup-addr c307 c309", false,
		func(ctx context.Context, a nic.Applier, s *session.Session, opts nic.Options) (nic.Report, error) {
			return a.AssignAddresses(ctx, s.Config, opts.Interfaces)
		})
}

func newCmd(t *terminal.Terminal, env *cmdcontext.Env, use string, short string, long string, example string, withProfiles bool, run step) *cobra.Command {
	var flags util.NICFlags
	if long == "" {
		long = short
	}
	cmd := &cobra.Command{
		Use:                   use + " [host...]",
		DisableFlagsInUseLine: true,
		Short:                 short,
		Long:                  long,
		Example:               example,
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := util.GetHostNames(args, env.In, env.Piped)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			err = runStep(cmd.Context(), t, env, hosts, flags.Options(), run)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	flags.AddTo(cmd, withProfiles)
	return cmd
}

// runStep runs one applier step on every host and prints a summary line per host.
func runStep(ctx context.Context, t *terminal.Terminal, env *cmdcontext.Env, hosts []string, opts nic.Options, run step) error {
	return util.ForEachSession(ctx, t, env, hosts, func(ctx context.Context, s *session.Session) error {
		report, err := run(ctx, nic.NewApplier(s.Exec, s.Log), s, opts)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		terminal.DisplaySummary(t, s.Host, report.Issued, report.Failed)
		return nil
	})
}
