package output

import (
	"fmt"
	"os"
	"sync"

	"github.com/rafabd1/Foxglove/internal/utils"
)

// TerminalController serializes writes to the terminal so the progress bar
// and log lines never interleave on the same line.
type TerminalController struct {
	mu             sync.Mutex
	outputMu       sync.Mutex
	isTerminal     bool
	hasProgressBar bool
}

var (
	terminalController *TerminalController
	once               sync.Once
)

// GetTerminalController returns the process-wide terminal controller.
func GetTerminalController() *TerminalController {
	once.Do(func() {
		terminalController = &TerminalController{
			isTerminal: utils.IsTerminal(os.Stderr),
		}
	})
	return terminalController
}

// BeginOutput takes exclusive access to the terminal. Pair with EndOutput.
func (tc *TerminalController) BeginOutput() {
	tc.outputMu.Lock()
}

// EndOutput releases exclusive access to the terminal.
func (tc *TerminalController) EndOutput() {
	tc.outputMu.Unlock()
}

// SetProgressBarActive records whether a progress bar currently owns the
// bottom terminal line.
func (tc *TerminalController) SetProgressBarActive(active bool) {
	tc.mu.Lock()
	tc.hasProgressBar = active
	tc.mu.Unlock()
}

// HasProgressBar reports whether a progress bar is currently active.
func (tc *TerminalController) HasProgressBar() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.hasProgressBar
}

// ClearLine clears the current terminal line when stderr is a terminal.
func (tc *TerminalController) ClearLine() {
	if tc.isTerminal {
		fmt.Fprint(os.Stderr, "\033[2K\r")
	}
}

// CoordinateOutput runs fn with exclusive access to a cleared terminal line.
func (tc *TerminalController) CoordinateOutput(fn func()) {
	tc.BeginOutput()
	defer tc.EndOutput()
	tc.ClearLine()
	fn()
}

// IsTerminal reports whether stderr is attached to a terminal.
func (tc *TerminalController) IsTerminal() bool {
	return tc.isTerminal
}
