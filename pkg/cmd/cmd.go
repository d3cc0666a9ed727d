// Package cmd is the entrypoint to cli
package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmd/hosts"
	"github.com/nmlab/rigctl/pkg/cmd/loadnetmap"
	"github.com/nmlab/rigctl/pkg/cmd/push"
	"github.com/nmlab/rigctl/pkg/cmd/setupifs"
	"github.com/nmlab/rigctl/pkg/cmd/show"
	"github.com/nmlab/rigctl/pkg/cmd/util"
	"github.com/nmlab/rigctl/pkg/cmd/version"
	"github.com/nmlab/rigctl/pkg/cmdcontext"
	"github.com/nmlab/rigctl/pkg/config"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/remote"
	"github.com/nmlab/rigctl/pkg/terminal"
)

func NewDefaultRigCommand() *cobra.Command {
	env := &cmdcontext.Env{
		Fs:     afero.NewOsFs(),
		Runner: remote.ProcessRunner{},
		In:     os.Stdin,
		Piped:  util.IsStdinPiped(),
	}
	return NewRigCommand(env, os.Stdout, os.Stderr, userConfigDir())
}

// NewRigCommand builds the command tree over env. configDir is searched for
// config.yaml after /etc/rigctl/.
func NewRigCommand(env *cmdcontext.Env, out io.Writer, errOut io.Writer, configDir string) *cobra.Command {
	t := terminal.NewWithWriters(out, errOut)
	v := config.NewViper(configDir)
	var configFile string

	cmds := &cobra.Command{
		Use:   "rigctl",
		Short: "configure the machines of a netmap testbed",
		Long: `
      rigctl configures the machines of a netmap testbed over ssh:
      NIC tuning profiles, interrupt affinity, interface addresses,
      netmap module loading and source distribution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			if err := env.Load(v, errOut); err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
		Run: runHelp,
	}
	cmds.SetOut(out)
	cmds.SetErr(errOut)

	flags := cmds.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: /etc/rigctl/config.yaml, then ~/.rigctl/config.yaml)")
	flags.String("ssh-config", "", "ssh client config to read host entries from (default: ~/.ssh/config)")
	flags.Bool("dry-run", false, "print state-changing commands instead of running them")
	flags.String("log-level", "", "debug, info, warn or error (default: info)")
	flags.IntP("parallel", "j", 0, "hosts configured at the same time (default: 4)")
	bindFlags := map[string]string{
		config.KeySSHConfig: "ssh-config",
		config.KeyDryRun:    "dry-run",
		config.KeyLogLevel:  "log-level",
		config.KeyParallel:  "parallel",
	}
	for key, name := range bindFlags {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	cmds.AddCommand(hosts.NewCmdHosts(t, env))
	cmds.AddCommand(show.NewCmdShow(t, env))
	cmds.AddCommand(setupifs.NewCmdSetupIfs(t, env))
	cmds.AddCommand(setupifs.NewCmdSetupIRQ(t, env))
	cmds.AddCommand(setupifs.NewCmdSetupAddr(t, env))
	cmds.AddCommand(loadnetmap.NewCmdLoadNetmap(t, env))
	cmds.AddCommand(loadnetmap.NewCmdUnloadNetmap(t, env))
	cmds.AddCommand(push.NewCmdPush(t, env))
	cmds.AddCommand(version.NewCmdVersion(t))

	return cmds
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rigctl")
}

func runHelp(cmd *cobra.Command, _ []string) {
	_ = cmd.Help()
}
