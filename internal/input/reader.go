package input

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rafabd1/Foxglove/internal/utils"
)

// Reader collects target URLs from positional arguments, a targets file, or
// piped standard input. Blank lines and '#' comments are skipped.
type Reader struct {
	logger utils.Logger
}

// NewReader creates a new Reader.
func NewReader(logger utils.Logger) *Reader {
	return &Reader{logger: logger}
}

// GatherTargets merges targets from all configured sources, in order:
// positional arguments, then the targets file, then stdin when it is piped.
func (r *Reader) GatherTargets(args []string, targetsFile string) ([]string, error) {
	var targets []string
	targets = append(targets, args...)

	if targetsFile != "" {
		fromFile, err := r.readFromFile(targetsFile)
		if err != nil {
			return nil, err
		}
		r.logger.Debugf("Loaded %d target(s) from file %s", len(fromFile), targetsFile)
		targets = append(targets, fromFile...)
	}

	if !utils.IsTerminal(os.Stdin) {
		fromStdin, err := r.readLines(bufio.NewScanner(os.Stdin))
		if err != nil {
			return nil, fmt.Errorf("failed to read targets from stdin: %w", err)
		}
		if len(fromStdin) > 0 {
			r.logger.Debugf("Loaded %d target(s) from stdin", len(fromStdin))
			targets = append(targets, fromStdin...)
		}
	}

	return targets, nil
}

func (r *Reader) readFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file '%s': %w", filePath, err)
	}
	defer file.Close()
	lines, err := r.readLines(bufio.NewScanner(file))
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file '%s': %w", filePath, err)
	}
	return lines, nil
}

func (r *Reader) readLines(scanner *bufio.Scanner) ([]string, error) {
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
