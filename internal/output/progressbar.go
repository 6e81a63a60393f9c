package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rafabd1/Foxglove/internal/utils"
)

// ProgressBar renders a single-line scan progress indicator on stderr.
// It registers itself with the logger so log lines temporarily clear the bar
// instead of colliding with it. On non-terminal stderr the bar is a no-op.
type ProgressBar struct {
	total        int
	current      int
	width        int
	refresh      time.Duration
	startTime    time.Time
	mu           sync.Mutex
	done         chan struct{}
	writer       io.Writer
	isActive     bool
	spinner      int
	spinnerChars []string
	prefix       string
	suffix       string
	isTerminal   bool
	renderPaused bool
}

// NewProgressBar creates a progress bar for the given job total.
func NewProgressBar(total int, width int) *ProgressBar {
	return &ProgressBar{
		total:        total,
		width:        width,
		refresh:      250 * time.Millisecond,
		done:         make(chan struct{}),
		writer:       os.Stderr,
		spinnerChars: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		isTerminal:   utils.IsTerminal(os.Stderr),
	}
}

// Start begins rendering the bar and hooks it into the logger.
func (pb *ProgressBar) Start() {
	pb.mu.Lock()
	if pb.isActive || !pb.isTerminal {
		pb.mu.Unlock()
		return
	}
	pb.startTime = time.Now()
	pb.isActive = true
	pb.mu.Unlock()

	utils.RegisterLogCallbacks(pb.moveForLog, pb.showAfterLog)
	GetTerminalController().SetProgressBarActive(true)

	go func() {
		ticker := time.NewTicker(pb.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-pb.done:
				return
			case <-ticker.C:
				pb.render()
			}
		}
	}()
}

// Update sets the current progress count.
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	pb.current = current
	pb.mu.Unlock()
	pb.render()
}

// SetPrefix sets the text shown before the spinner.
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	pb.prefix = prefix
	pb.mu.Unlock()
}

// SetSuffix sets the text shown after the ETA.
func (pb *ProgressBar) SetSuffix(suffix string) {
	pb.mu.Lock()
	pb.suffix = suffix
	pb.mu.Unlock()
}

// Stop halts rendering, clears the bar line and unhooks the logger.
func (pb *ProgressBar) Stop() {
	pb.mu.Lock()
	if !pb.isActive {
		pb.mu.Unlock()
		return
	}
	pb.isActive = false
	close(pb.done)
	pb.mu.Unlock()

	utils.UnregisterLogCallbacks()
	tc := GetTerminalController()
	tc.SetProgressBarActive(false)
	if pb.isTerminal {
		tc.BeginOutput()
		fmt.Fprint(pb.writer, "\033[2K\r")
		tc.EndOutput()
	}
}

// moveForLog clears the bar line so a log message can take its place.
func (pb *ProgressBar) moveForLog() {
	pb.mu.Lock()
	shouldClear := pb.isActive && pb.isTerminal
	pb.renderPaused = true
	pb.mu.Unlock()

	if shouldClear {
		tc := GetTerminalController()
		tc.BeginOutput()
		fmt.Fprint(pb.writer, "\033[2K\r")
		tc.EndOutput()
	}
}

// showAfterLog redraws the bar after a log message was printed.
func (pb *ProgressBar) showAfterLog() {
	pb.mu.Lock()
	pb.renderPaused = false
	pb.mu.Unlock()
	pb.render()
}

func (pb *ProgressBar) render() {
	pb.mu.Lock()
	if !pb.isActive || !pb.isTerminal || pb.renderPaused {
		pb.mu.Unlock()
		return
	}

	pb.spinner = (pb.spinner + 1) % len(pb.spinnerChars)

	percent := 0.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total) * 100
	}

	elapsed := time.Since(pb.startTime)
	var etaStr string
	switch {
	case pb.total > 0 && pb.current >= pb.total:
		etaStr = "done"
	case pb.current > 0:
		eta := time.Duration(float64(elapsed) * float64(pb.total-pb.current) / float64(pb.current))
		etaStr = formatDuration(eta)
	default:
		etaStr = "n/a"
	}

	completedWidth := 0
	if pb.total > 0 {
		completedWidth = pb.width * pb.current / pb.total
	}
	if completedWidth > pb.width {
		completedWidth = pb.width
	}
	bar := strings.Repeat("█", completedWidth) + strings.Repeat("░", pb.width-completedWidth)

	status := fmt.Sprintf("%s%s [%s] %d/%d (%.1f%%) | elapsed: %s | eta: %s%s",
		pb.prefix, pb.spinnerChars[pb.spinner], bar,
		pb.current, pb.total, percent,
		formatDuration(elapsed), etaStr, pb.suffix)
	pb.mu.Unlock()

	tc := GetTerminalController()
	tc.BeginOutput()
	fmt.Fprint(pb.writer, "\033[2K\r"+status)
	tc.EndOutput()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	s := int(d.Seconds())
	if s < 0 {
		s = 0
	}
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	if s < 3600 {
		return fmt.Sprintf("%dm%02ds", s/60, s%60)
	}
	return fmt.Sprintf("%dh%02dm%02ds", s/3600, (s/60)%60, s%60)
}
