package main

import (
	"os"

	"github.com/nmlab/rigctl/pkg/cmd"
	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/terminal"
)

func main() {
	command := cmd.NewDefaultRigCommand()

	if err := command.Execute(); err != nil {
		t := terminal.New()
		var verr breverrors.ValidationError
		if breverrors.As(err, &verr) {
			t.Eprint(t.Yellow(verr.Error()))
		} else {
			t.Errprint(err, "")
		}
		os.Exit(1)
	}
}
