// Package hosts lists the machines rigctl has a configuration for.
package hosts

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmd/util"
	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/terminal"
)

func NewCmdHosts(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	var reachable bool
	cmd := &cobra.Command{
		Use:                   "hosts",
		DisableFlagsInUseLine: true,
		Short:                 "List hosts with a known configuration",
		Long: `List hosts with a known configuration. Hosts that also have an entry in
the ssh config are marked. The output can be piped into the other commands.`,
		Example: "  rigctl hosts --ssh | rigctl setup-addr",
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdcontext.InvokeParentPersistentPreRun(cmd, args); err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if env.Config.LogLevel == "debug" {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			err := Hosts(t, env, reachable, util.IsStdoutPiped())
			if err != nil {
				log.Error(err)
			}
		},
	}
	cmd.Flags().BoolVar(&reachable, "ssh", false, "only list hosts that have an ssh config entry")
	return cmd
}

func Hosts(t *terminal.Terminal, env *cmdcontext.Env, reachable bool, piped bool) error {
	targets := env.Targets()
	aliases, err := targets.Aliases()
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	log.Debugf("%d aliases in %s", len(aliases), env.Config.SSHConfig)

	names := lo.Filter(env.Resolver.Known(), func(name string, _ int) bool {
		return !reachable || lo.Contains(aliases, name)
	})

	if piped {
		for _, name := range names {
			t.Vprintf("%s\n", name)
		}
		return nil
	}

	ta := table.NewWriter()
	ta.SetOutputMirror(t.Out())
	ta.Style().Options = getTableOptions()
	ta.AppendHeader(table.Row{"HOST", "SSH", "DESTINATION"})
	for _, name := range names {
		if !lo.Contains(aliases, name) {
			ta.AppendRow(table.Row{name, "", ""})
			continue
		}
		target, err := targets.Target(name)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		ta.AppendRow(table.Row{name, t.Green("yes"), target.Destination()})
	}
	ta.Render()
	return nil
}

func getTableOptions() table.Options {
	options := table.OptionsDefault
	options.DrawBorder = false
	options.SeparateColumns = false
	options.SeparateRows = false
	options.SeparateHeader = false
	return options
}
