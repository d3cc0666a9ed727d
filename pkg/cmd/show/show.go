// Package show prints the resolved configuration of a host.
package show

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/terminal"
)

var (
	showLong = `Print the configuration rigctl resolves for a host as YAML. The host is
probed over ssh unless --os and --cpus are given.`

	showExample = `  rigctl show c307
  rigctl show c237 --os freebsd --cpus 8
  rigctl show c307 --if enp3s0f0
  rigctl show        # pick from the known hosts`
)

type offline struct {
	os     string
	cpus   int
	user   string
	ifaces []string
}

func NewCmdShow(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	var flags offline
	cmd := &cobra.Command{
		Use:                   "show [host]",
		DisableFlagsInUseLine: true,
		Short:                 "Print the resolved configuration of a host",
		Long:                  showLong,
		Example:               showExample,
		Args:                  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := ""
			if len(args) == 1 {
				host = args[0]
			} else {
				if env.Piped {
					return breverrors.NewValidationError("host name required")
				}
				selected, err := terminal.PromptSelectInput(terminal.PromptSelectContent{
					Label: "Host",
					Items: env.Resolver.Known(),
				})
				if err != nil {
					return breverrors.WrapAndTrace(err)
				}
				host = selected
			}

			cfg, err := resolve(cmd, env, host, flags)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if len(flags.ifaces) > 0 {
				cfg, err = cfg.Narrow(flags.ifaces)
				if err != nil {
					return breverrors.WrapAndTrace(err)
				}
			}
			return Render(t, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.os, "os", "", "resolve offline for this OS (linux or freebsd)")
	cmd.Flags().IntVar(&flags.cpus, "cpus", 0, "CPU count when resolving offline")
	cmd.Flags().StringVar(&flags.user, "user", "root", "login user when resolving offline")
	cmd.Flags().StringSliceVar(&flags.ifaces, "if", nil, "only show these interfaces")
	return cmd
}

func resolve(cmd *cobra.Command, env *cmdcontext.Env, host string, flags offline) (*hostenv.HostConfig, error) {
	if flags.os == "" {
		if flags.cpus != 0 {
			return nil, breverrors.NewValidationError("--cpus needs --os")
		}
		s, err := env.Opener(cmd.OutOrStdout()).Open(cmd.Context(), host)
		if err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
		return s.Config, nil
	}

	kind, err := ParseOSFlag(flags.os)
	if err != nil {
		return nil, err
	}
	if flags.cpus <= 0 {
		return nil, breverrors.NewValidationError("--cpus must be positive when resolving offline")
	}
	cfg, err := env.Resolver.Resolve(host, kind, flags.cpus, flags.user)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return cfg, nil
}

func ParseOSFlag(value string) (hostenv.OSKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "linux":
		return hostenv.Linux, nil
	case "freebsd":
		return hostenv.FreeBSD, nil
	default:
		return hostenv.OSUnknown, breverrors.NewValidationError(fmt.Sprintf("unknown os %q: use linux or freebsd", value))
	}
}

func Render(t *terminal.Terminal, cfg *hostenv.HostConfig) error {
	enc := yaml.NewEncoder(t.Out())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return breverrors.WrapAndTrace(enc.Close())
}
