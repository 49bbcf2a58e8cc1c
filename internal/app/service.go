// Package service provides the analysis service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/aquascan/internal/adapters/imageprep"
	"github.com/okian/aquascan/internal/adapters/inference"
	"github.com/okian/aquascan/internal/domain/ensemble"
	"github.com/okian/aquascan/internal/domain/labels"
	"github.com/okian/aquascan/internal/domain/model"
	"github.com/okian/aquascan/pkg/logger"
	"github.com/okian/aquascan/pkg/metrics"
)

// ConnectFunc establishes the connection to the remote models.
type ConnectFunc func(ctx context.Context) (inference.Collaborator, error)

// ImageInfo describes the image that was actually sent for inference.
type ImageInfo struct {
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Resized bool   `json:"resized"`
}

// Analysis is the outcome of one successful classification.
type Analysis struct {
	ID         string                  `json:"id"`
	Filename   string                  `json:"filename"`
	Ensemble   ensemble.Result         `json:"ensemble"`
	Level      ensemble.Level          `json:"level"`
	Models     []model.ModelPrediction `json:"models"`
	Image      ImageInfo               `json:"image"`
	DurationMS int64                   `json:"duration_ms"`
}

// Service owns the process-wide connection and runs analyses.
type Service struct {
	mu sync.RWMutex

	connect  ConnectFunc
	preparer *imageprep.Preparer
	space    string
	endpoint string

	once   sync.Once
	collab inference.Collaborator
	status inference.Status

	analyses atomic.Int64
	failures atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConnector sets how the service reaches the remote models.
func WithConnector(fn ConnectFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.connect = fn
		}
	}
}

// WithPreparer sets the image preparer.
func WithPreparer(p *imageprep.Preparer) Option {
	return func(s *Service) {
		if p != nil {
			s.preparer = p
		}
	}
}

// WithSpace records the remote identifier and endpoint reported by Status.
func WithSpace(space, endpoint string) Option {
	return func(s *Service) {
		s.space = space
		s.endpoint = endpoint
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing is contacted until Start.
func New(opts ...Option) *Service {
	s := &Service{
		preparer: imageprep.New(),
		endpoint: "/predict",
		status:   inference.Status{Reason: "not started"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Space = s.space
	s.status.Endpoint = s.endpoint
	return s
}

// Start attempts the connection exactly once. The outcome, success or
// failure, is kept for the life of the process. A failed connection is not
// returned as an error: the service still serves, rejecting analyses.
func (s *Service) Start(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.logger == nil {
			s.logger = logger.Get()
		}
		s.logger.Info(ctx, "connecting to inference space",
			logger.String("space", s.space),
			logger.String("endpoint", s.endpoint))

		if s.connect == nil {
			s.status.Reason = "no connector configured"
			metrics.RecordConnection(false)
			s.logger.Error(ctx, "inference space unavailable", logger.String("reason", s.status.Reason))
			return
		}

		c, err := s.connect(ctx)
		if err != nil {
			s.status.Reason = err.Error()
			metrics.RecordConnection(false)
			s.logger.Error(ctx, "inference space unavailable", logger.Error(err))
			return
		}

		s.collab = c
		s.status.Connected = true
		s.status.Reason = ""
		if h, ok := c.(interface{ Host() string }); ok {
			s.status.Host = h.Host()
		}
		metrics.RecordConnection(true)
		s.logger.Info(ctx, "inference space connected", logger.String("host", s.status.Host))
	})
	return nil
}

// Status returns the connection status.
func (s *Service) Status() inference.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Labels returns the species table.
func (s *Service) Labels() []labels.Label {
	return labels.All()
}

// Analyze classifies one uploaded image. Once the remote call is issued it
// runs to completion even if ctx is cancelled. Failures never produce a
// partial analysis.
func (s *Service) Analyze(ctx context.Context, filename string, data []byte) (Analysis, error) {
	start := time.Now()

	s.mu.RLock()
	collab, status, log := s.collab, s.status, s.logger
	s.mu.RUnlock()
	if log == nil {
		log = logger.Nop()
	}

	if !status.Connected {
		s.fail(metrics.OutcomeNotConnected)
		return Analysis{}, fmt.Errorf("%w: %s", inference.ErrNotConnected, status.Reason)
	}

	img, err := s.preparer.Prepare(filename, data)
	if err != nil {
		s.fail(metrics.OutcomeInvalidImage)
		return Analysis{}, err
	}
	metrics.RecordUpload(len(data))
	if img.Resized {
		metrics.RecordImageResized()
		log.Debug(ctx, "image downscaled",
			logger.Int("from_width", img.OriginalWidth),
			logger.Int("from_height", img.OriginalHeight),
			logger.Int("width", img.Width),
			logger.Int("height", img.Height))
	}

	inferStart := time.Now()
	out, err := collab.Infer(context.WithoutCancel(ctx), inference.Image{Filename: img.Filename, Data: img.Data})
	latency := time.Since(inferStart)
	metrics.RecordInferenceLatency(float64(latency.Milliseconds()))
	if err != nil {
		outcome := metrics.OutcomeTransport
		if errors.Is(err, inference.ErrParse) {
			outcome = metrics.OutcomeParse
		}
		s.fail(outcome)
		metrics.RecordErrorLatency("inference", outcome, float64(latency.Milliseconds()))
		log.Error(ctx, "inference failed", logger.String("filename", img.Filename), logger.Error(err))
		return Analysis{}, err
	}

	out.ResNet18.Label = labels.Resolve(out.ResNet18.ClassIndex)
	out.MobileNetV2.Label = labels.Resolve(out.MobileNetV2.ClassIndex)
	result := ensemble.CombineInference(out)
	level := ensemble.LevelOf(result.Confidence)

	for _, p := range out.Predictions() {
		metrics.RecordModelConfidence(p.ModelName, p.Confidence)
	}
	metrics.RecordEnsembleDecision(string(result.Rationale), result.Confidence)
	metrics.RecordAnalysis(metrics.OutcomeSuccess)
	s.analyses.Add(1)

	a := Analysis{
		ID:       uuid.NewString(),
		Filename: img.Filename,
		Ensemble: result,
		Level:    level,
		Models:   out.Predictions(),
		Image: ImageInfo{
			Format:  img.Format,
			Width:   img.Width,
			Height:  img.Height,
			Resized: img.Resized,
		},
		DurationMS: time.Since(start).Milliseconds(),
	}
	log.Info(ctx, "analysis complete",
		logger.String("id", a.ID),
		logger.String("label", result.Label),
		logger.Float64("confidence", result.Confidence),
		logger.String("rationale", string(result.Rationale)),
		logger.Duration("latency", latency))
	return a, nil
}

func (s *Service) fail(outcome string) {
	s.failures.Add(1)
	metrics.RecordAnalysis(outcome)
	metrics.RecordErrorByComponent("analysis", outcome)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	st := s.Status()
	return map[string]interface{}{
		"connected":  st.Connected,
		"space":      st.Space,
		"endpoint":   st.Endpoint,
		"analyses":   s.analyses.Load(),
		"failures":   s.failures.Load(),
		"labelCount": labels.Count(),
	}
}
