package analyzecli

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/aquascan/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging initializes the global logger. Records go to stderr so that
// stdout stays clean for -json output; when logFile is set they are also
// appended to that file. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, file)
		closer = file
	}

	if err := logger.InitWithWriter(w); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	_ = logger.SetLevelString(level)
	return closer, nil
}

// ShowHelp prints usage information for the analyze tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `AquaScan Analyze
================

Classify a fish image with a running AquaScan server.

Usage:
  go run ./cmd/analyze -image <file> [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8501")
  -image string
        Path to a JPEG or PNG image (required)
  -timeout duration
        HTTP request timeout, 0 for none (default 2m)
  -json
        Print the raw JSON analysis
  -log string
        Append log records to this file
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Classify an image against a local server
  go run ./cmd/analyze -image trout.jpg

  # Print the JSON result from a remote server
  go run ./cmd/analyze -url http://aquascan:8501 -image bass.png -json
`)
}
