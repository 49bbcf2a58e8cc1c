package inference

import (
	"math"

	"github.com/antonholmquist/jason"
	"github.com/okian/aquascan/internal/domain/model"
)

// parseOutput decodes the endpoint result: a one-element array holding an
// object keyed by model name. Any deviation is a *ParseError.
func parseOutput(raw []byte) (model.Inference, error) {
	v, err := jason.NewValueFromBytes(raw)
	if err != nil {
		return model.Inference{}, parseErrorf(raw, "invalid JSON: %v", err)
	}

	out, err := v.Object()
	if err != nil {
		arr, aerr := v.Array()
		if aerr != nil || len(arr) == 0 {
			return model.Inference{}, parseErrorf(raw, "expected a result object")
		}
		if out, err = arr[0].Object(); err != nil {
			return model.Inference{}, parseErrorf(raw, "expected a result object")
		}
	}

	resnet, err := parseModel(raw, out, model.ResNet18)
	if err != nil {
		return model.Inference{}, err
	}
	mobile, err := parseModel(raw, out, model.MobileNetV2)
	if err != nil {
		return model.Inference{}, err
	}
	return model.Inference{ResNet18: resnet, MobileNetV2: mobile}, nil
}

func parseModel(raw []byte, out *jason.Object, name string) (model.ModelPrediction, error) {
	m, err := out.GetObject(name)
	if err != nil {
		return model.ModelPrediction{}, parseErrorf(raw, "missing %s entry", name)
	}

	n, err := m.GetNumber("predicted_class")
	if err != nil {
		return model.ModelPrediction{}, parseErrorf(raw, "%s: predicted_class is not a number", name)
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return model.ModelPrediction{}, parseErrorf(raw, "%s: predicted_class is not an integer", name)
	}
	// -math.MinInt is the first float past MaxInt; MaxInt itself rounds up to it.
	if f < math.MinInt || f >= -math.MinInt {
		return model.ModelPrediction{}, parseErrorf(raw, "%s: predicted_class %v is out of range", name, f)
	}

	conf, err := m.GetFloat64("confidence")
	if err != nil {
		return model.ModelPrediction{}, parseErrorf(raw, "%s: confidence is not a number", name)
	}

	return model.ModelPrediction{
		ModelName:  name,
		ClassIndex: int(f),
		Confidence: conf,
	}, nil
}
