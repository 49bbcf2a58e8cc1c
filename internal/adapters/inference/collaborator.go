// Package inference talks to the remote app that hosts the two fish
// classifiers. The app is a Gradio application; only its named /predict
// endpoint is used.
package inference

import (
	"context"

	"github.com/okian/aquascan/internal/domain/model"
)

// Image is the payload forwarded to the remote models.
type Image struct {
	Filename string
	Data     []byte
}

// Collaborator runs one remote inference for both models. It either returns
// both predictions or an error; there is no partial result.
type Collaborator interface {
	Infer(ctx context.Context, img Image) (model.Inference, error)
}

// Status describes the process-wide connection to the remote app.
type Status struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
	Space     string `json:"space"`
	Host      string `json:"host,omitempty"`
	Endpoint  string `json:"endpoint"`
}
