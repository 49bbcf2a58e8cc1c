package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/aquascan/internal/analyzecli"
)

// Default configuration constants.
const (
	defaultTimeout = 2 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8501", "Base URL of the service")
		imagePath = flag.String("image", "", "Path to a JPEG or PNG image")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout, 0 for none")
		jsonOut   = flag.Bool("json", false, "Print the raw JSON analysis")
		logFile   = flag.String("log", "", "Append log records to this file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		analyzecli.ShowHelp(os.Stdout)
		return
	}

	closer, err := analyzecli.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := &analyzecli.Config{
		BaseURL:   *baseURL,
		ImagePath: *imagePath,
		Timeout:   *timeout,
		JSON:      *jsonOut,
		LogFile:   *logFile,
		Verbose:   *verbose,
	}

	if err := analyzecli.Run(ctx, config, os.Stdout); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		stop()
		_ = closer.Close()
		os.Exit(1)
	}
}
