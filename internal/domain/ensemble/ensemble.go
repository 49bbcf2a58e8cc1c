// Package ensemble combines the answers of the two remote models into a
// single decision.
package ensemble

import (
	"github.com/okian/aquascan/internal/domain/labels"
	"github.com/okian/aquascan/internal/domain/model"
)

// Rationale records how the ensemble decision was reached.
type Rationale string

const (
	// Consensus: both models named the same known class.
	Consensus Rationale = "CONSENSUS"
	// SplitVoteA: the first model won on confidence (ties included).
	SplitVoteA Rationale = "SPLIT_VOTE_A"
	// SplitVoteB: the second model had strictly higher confidence.
	SplitVoteB Rationale = "SPLIT_VOTE_B"
)

// Result is the ensemble decision for one image.
type Result struct {
	ClassIndex int       `json:"class_index"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Rationale  Rationale `json:"rationale"`
	// Winner names the model whose answer was taken; empty on consensus.
	Winner string `json:"winner,omitempty"`
	Note   string `json:"note"`
}

// Combine merges two predictions. a is the first-listed model and wins ties.
//
// Equal indices only count as consensus when the index is known: two models
// that both failed to classify (-1) go through the split-vote path.
// Confidences are used as given.
func Combine(a, b model.ModelPrediction) Result {
	if a.ClassIndex == b.ClassIndex && a.Known() {
		return Result{
			ClassIndex: a.ClassIndex,
			Label:      labels.Resolve(a.ClassIndex),
			Confidence: (a.Confidence + b.Confidence) / 2.0,
			Rationale:  Consensus,
			Note:       "Consensus (both models agree)",
		}
	}

	winner, rationale := b, SplitVoteB
	if a.Confidence >= b.Confidence {
		winner, rationale = a, SplitVoteA
	}
	return Result{
		ClassIndex: winner.ClassIndex,
		Label:      labels.Resolve(winner.ClassIndex),
		Confidence: winner.Confidence,
		Rationale:  rationale,
		Winner:     winner.ModelName,
		Note:       "Split vote — " + winner.ModelName + " selected (higher confidence)",
	}
}

// CombineInference combines the typed pair in its fixed model order.
func CombineInference(in model.Inference) Result {
	return Combine(in.ResNet18, in.MobileNetV2)
}
