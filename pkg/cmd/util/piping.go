package util

import (
	"bufio"
	"io"
	"os"
	"strings"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

// IsStdoutPiped returns true if stdout is being piped to another command
// Enables command chaining like: rigctl hosts | grep ^c4 | rigctl setup-ifs
func IsStdoutPiped() bool {
	stat, _ := os.Stdout.Stat()
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// IsStdinPiped returns true if stdin is being piped from another command
func IsStdinPiped() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetHostNames gets host names from args, then from in when it is piped.
// Returns error if no names are provided
func GetHostNames(args []string, in io.Reader, piped bool) ([]string, error) {
	names := append([]string{}, args...)

	if piped && in != nil {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			// first column, so `rigctl hosts` output can be piped back in
			fields := strings.Fields(scanner.Text())
			if len(fields) > 0 {
				names = append(names, fields[0])
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, breverrors.WrapAndTrace(err)
		}
	}

	if len(names) == 0 {
		return nil, breverrors.NewValidationError("host name required: provide as argument or pipe from another command")
	}
	return names, nil
}
