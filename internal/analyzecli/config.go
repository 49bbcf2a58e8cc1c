package analyzecli

import "time"

// Config holds configuration for one CLI run
type Config struct {
	BaseURL   string        // Base URL of the service
	ImagePath string        // Image to classify
	Timeout   time.Duration // HTTP request timeout
	JSON      bool          // Print raw JSON
	LogFile   string        // Log file
	Verbose   bool          // Enable verbose logging
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason"`
	Space     string `json:"space"`
	Endpoint  string `json:"endpoint"`
}

// Prediction is one model's answer.
type Prediction struct {
	Model      string  `json:"model"`
	ClassIndex int     `json:"class_index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Analysis mirrors the POST /api/v1/analyze response.
type Analysis struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Ensemble struct {
		ClassIndex int     `json:"class_index"`
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
		Winner     string  `json:"winner"`
		Note       string  `json:"note"`
	} `json:"ensemble"`
	Level      string       `json:"level"`
	Models     []Prediction `json:"models"`
	DurationMS int64        `json:"duration_ms"`
}

// APIError is the error body returned by the service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
