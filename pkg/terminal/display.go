package terminal

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

type PromptSelectContent struct {
	Label string
	Items []string
}

func PromptSelectInput(pc PromptSelectContent) (string, error) {
	prompt := promptui.Select{
		Label: pc.Label,
		Items: pc.Items,
		Size:  12,
		Searcher: func(input string, index int) bool {
			return strings.Contains(pc.Items[index], input)
		},
	}

	_, result, err := prompt.Run()
	if err != nil {
		return "", breverrors.WrapAndTrace(err)
	}
	return result, nil
}

// DisplaySummary prints the per-host result line used by the multi-host commands.
func DisplaySummary(t *Terminal, host string, issued int, failed int) {
	status := t.Green("ok")
	if failed > 0 {
		status = t.Yellow(fmt.Sprintf("%d tolerated failures", failed))
	}
	t.Vprintf("%s: %d commands, %s\n", t.Blue(host), issued, status)
}
