package version

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nmlab/rigctl/pkg/terminal"
)

// Version is set at build time with -ldflags "-X .../version.Version=v1.2.3".
var Version = ""

var green = color.New(color.FgGreen).SprintfFunc()

func NewCmdVersion(t *terminal.Terminal) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rigctl version",
		Long:  "Print the rigctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			t.Vprint(buildVersionString())
		},
	}
}

func buildVersionString() string {
	v := Version
	if v == "" {
		v = "unknown"
	}
	return fmt.Sprintf("rigctl %s (%s/%s)\n", green(v), runtime.GOOS, runtime.GOARCH)
}
