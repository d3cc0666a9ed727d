// Package push copies local source trees to the paths a host builds from.
package push

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/cmd/util"
	"github.com/nmlab/rigctl/pkg/cmdcontext"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/netmap"
	"github.com/nmlab/rigctl/pkg/remote"
	"github.com/nmlab/rigctl/pkg/session"
	"github.com/nmlab/rigctl/pkg/terminal"
)

var (
	pushLong = `Copy a local source tree to the host's netmap, linux, ovs or freebsd
source path with rsync. .git is left out for hosts that build without git.`

	pushExample = `  # ./netmap to the netmap tree of c307 and c309
  rigctl push netmap c307 c309

  # an explicit checkout, removing files deleted locally
  rigctl push linux c416 --from ~/src/net-next --delete

  # netmap with debug output enabled for the next build
  rigctl push netmap c309 --debug`
)

var trees = []string{"netmap", "linux", "ovs", "freebsd"}

// Options controls a push.
type Options struct {
	From   string
	Delete bool
	// Debug enables netmap debug output in the pushed tree.
	Debug bool
}

func NewCmdPush(t *terminal.Terminal, env *cmdcontext.Env) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:                   "push <tree> [host...]",
		DisableFlagsInUseLine: true,
		Short:                 "Copy a source tree to hosts",
		Long:                  pushLong,
		Example:               pushExample,
		Args:                  cobra.MinimumNArgs(1),
		ValidArgs:             trees,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree := args[0]
			hosts, err := util.GetHostNames(args[1:], env.In, env.Piped)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			if opts.From == "" {
				opts.From = tree
			}
			if opts.Debug && tree != "netmap" {
				return breverrors.NewValidationError("--debug only applies to the netmap tree")
			}
			err = Push(cmd.Context(), t, env, hosts, tree, opts)
			if err != nil {
				return breverrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "local directory to copy (default: ./<tree>)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete files on the host that are not in the local tree")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable netmap debug output for the next build")
	return cmd
}

func Push(ctx context.Context, t *terminal.Terminal, env *cmdcontext.Env, hosts []string, tree string, opts Options) error {
	isDir, err := afero.IsDir(env.Fs, opts.From)
	if err != nil || !isDir {
		return breverrors.NewValidationError(fmt.Sprintf("%s is not a directory", opts.From))
	}
	src, err := filepath.Abs(opts.From)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}

	return util.ForEachSession(ctx, t, env, hosts, func(ctx context.Context, s *session.Session) error {
		dest, err := s.Config.SourcePath(tree)
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		spec := remote.SyncSpec{Source: src, Dest: dest, Delete: opts.Delete}
		if s.Config.NoGit {
			spec.Exclude = []string{".git"}
		}

		sp := t.NewSpinner()
		sp.Suffix = fmt.Sprintf(" pushing %s to %s:%s", tree, s.Host, dest)
		if len(hosts) == 1 {
			sp.Start()
		}
		err = s.Exec.Sync(ctx, spec)
		sp.Stop()
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		t.Vprintf("%s: %s\n", t.Blue(s.Host), t.Green("pushed %s to %s", tree, dest))

		if opts.Debug {
			if _, err := netmap.NewLoader(s.Exec, s.Log).EnableDebug(ctx, s.Config); err != nil {
				return breverrors.WrapAndTrace(err)
			}
		}
		return nil
	})
}
