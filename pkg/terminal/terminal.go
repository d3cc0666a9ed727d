// Package terminal is for terminal outputting
package terminal

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

type ProgressBar struct {
	Bar  *progressbar.ProgressBar
	Done int
}

type Terminal struct {
	out     io.Writer
	verbose io.Writer
	err     io.Writer

	Green  func(format string, a ...interface{}) string
	Yellow func(format string, a ...interface{}) string
	Red    func(format string, a ...interface{}) string
	Blue   func(format string, a ...interface{}) string
}

func New() (t *Terminal) {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters builds a terminal over arbitrary writers, mostly for tests.
func NewWithWriters(out io.Writer, errOut io.Writer) *Terminal {
	return &Terminal{
		out:     out,
		verbose: out,
		err:     errOut,
		Green:   color.New(color.FgGreen).SprintfFunc(),
		Yellow:  color.New(color.FgYellow).SprintfFunc(),
		Red:     color.New(color.FgRed).SprintfFunc(),
		Blue:    color.New(color.FgBlue).SprintfFunc(),
	}
}

func (t *Terminal) Print(a string) {
	fmt.Fprintln(t.out, a)
}

func (t *Terminal) Printf(format string, a ...interface{}) {
	fmt.Fprintf(t.out, format, a...)
}

func (t *Terminal) Vprint(a string) {
	fmt.Fprintln(t.verbose, a)
}

func (t *Terminal) Vprintf(format string, a ...interface{}) {
	fmt.Fprintf(t.verbose, format, a...)
}

func (t *Terminal) Eprint(a string) {
	fmt.Fprintln(t.err, a)
}

func (t *Terminal) Eprintf(format string, a ...interface{}) {
	fmt.Fprintf(t.err, format, a...)
}

func (t *Terminal) Errprint(err error, a string) {
	t.Eprint(t.Red("Error: " + err.Error()))
	if a != "" {
		t.Eprint(t.Red(a))
	}
	if rigErr, ok := err.(breverrors.RigError); ok {
		t.Eprint(t.Red(rigErr.Directive()))
	}
}

// Out exposes the primary writer so callers can stream command output.
func (t *Terminal) Out() io.Writer {
	return t.out
}

func (t *Terminal) NewSpinner() *spinner.Spinner {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(t.err))
	s.Color("cyan") //nolint:errcheck // only fails on unknown color names
	return s
}

// NewProgressBar tracks completion of total units, one Advance per finished unit.
func (t *Terminal) NewProgressBar(description string, total int) *ProgressBar {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(t.err),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	return &ProgressBar{Bar: bar}
}

func (bar *ProgressBar) Advance() {
	bar.Done++
	_ = bar.Bar.Add(1)
}

func (bar *ProgressBar) Describe(text string) {
	bar.Bar.Describe(text)
}
