// Package model contains domain models passed between layers.
package model

// Names of the two models served by the remote app, in tie-break order.
const (
	ResNet18    = "ResNet18"
	MobileNetV2 = "MobileNetV2"
)

// UnknownClass marks a prediction with no valid class.
const UnknownClass = -1

// ModelPrediction is one model's answer for a single image.
type ModelPrediction struct {
	ModelName  string  `json:"model"`
	ClassIndex int     `json:"class_index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // carried as reported, never clamped
}

// Known reports whether the prediction names a real class.
func (p ModelPrediction) Known() bool {
	return p.ClassIndex != UnknownClass
}

// Inference is the typed result of one remote call: exactly one
// prediction per served model.
type Inference struct {
	ResNet18    ModelPrediction
	MobileNetV2 ModelPrediction
}

// Predictions returns both predictions in tie-break order.
func (i Inference) Predictions() []ModelPrediction {
	return []ModelPrediction{i.ResNet18, i.MobileNetV2}
}
