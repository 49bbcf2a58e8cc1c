package analyzecli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/okian/aquascan/pkg/logger"
)

// Sentinel errors for a CLI run.
var (
	ErrNoImage      = errors.New("no image given; use -image")
	ErrNotConnected = errors.New("service is not connected to the inference space")
)

// Run checks the service, uploads the image and prints the result to out.
func Run(ctx context.Context, config *Config, out io.Writer) error {
	if config.ImagePath == "" {
		return ErrNoImage
	}
	log := logger.Get()
	log.Debug(ctx, "starting analysis",
		logger.String("baseURL", config.BaseURL),
		logger.String("image", config.ImagePath),
		logger.Duration("timeout", config.Timeout))

	data, err := os.ReadFile(config.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check connection status
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("service status check failed: %w", err)
	}
	if !st.Connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, st.Reason)
	}
	log.Debug(ctx, "service connected", logger.String("space", st.Space), logger.String("endpoint", st.Endpoint))

	// Step 2: Analyze
	body, err := client.Analyze(ctx, config.ImagePath, data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Raw != "" {
			fmt.Fprintf(out, "Raw output:\n%s\n", apiErr.Raw)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	// Step 3: Print
	if config.JSON {
		_, err := out.Write(body)
		return err
	}
	var a Analysis
	if err := json.Unmarshal(body, &a); err != nil {
		return fmt.Errorf("failed to decode analysis: %w", err)
	}
	log.Debug(ctx, "analysis received", logger.String("id", a.ID), logger.Int64("durationMs", a.DurationMS))
	return printSummary(out, &a)
}

func printSummary(out io.Writer, a *Analysis) error {
	fmt.Fprintf(out, "Identified species: %s\n", a.Ensemble.Label)
	fmt.Fprintf(out, "Confidence:         %.1f%% (%s)\n", a.Ensemble.Confidence*100, a.Level)
	fmt.Fprintf(out, "Decision:           %s\n\n", a.Ensemble.Note)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPREDICTION\tCONFIDENCE")
	for _, m := range a.Models {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", m.Model, m.Label, m.Confidence*100)
	}
	return tw.Flush()
}
