package display

import (
	"io"
	"time"

	"github.com/briandowns/spinner"

	"github.com/bacalhau-project/vmcheck/pkg/logger"
)

const spinnerInterval = 100 * time.Millisecond

// NewSpinner creates a spinner on w to alert the user about the progress.
// The spinner only draws when w is a terminal.
func NewSpinner(w io.Writer, message string) *spinner.Spinner {
	l := logger.Get()
	l.Debugf("Creating spinner: %s", message)

	s := spinner.New(spinner.CharSets[14], spinnerInterval, spinner.WithWriter(w))
	s.Prefix = message + " "
	_ = s.Color("green")
	s.Start()

	return s
}

// Progress shows the name of the running check next to a spinner.
type Progress struct {
	s *spinner.Spinner
}

func NewProgress(w io.Writer, message string) *Progress {
	return &Progress{s: NewSpinner(w, message)}
}

// Step is used as the onStep callback of smoke.Run.
func (p *Progress) Step(name string) {
	p.s.Lock()
	p.s.Suffix = " " + name
	p.s.Unlock()
}

func (p *Progress) Stop() {
	p.s.Stop()
}
