package inference

import (
	"strconv"
	"time"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/tumorclassifier/models"
)

// Prediction is one model's entry in a classification response.
type Prediction struct {
	Model          models.Name       `json:"model"`
	Prediction     models.ClassLabel `json:"prediction,omitempty"`
	Confidence     string            `json:"confidence,omitempty"`
	ProcessingTime string            `json:"processing_time,omitempty"`
	Accuracy       float64           `json:"accuracy"`
	Icon           string            `json:"icon"`
	Error          string            `json:"error,omitempty"`
}

// Outcome pairs a model's prediction with the error that prevented it, if any.
type Outcome struct {
	Prediction Prediction
	Err        error
}

// OK reports whether the model produced a prediction.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Predictions flattens outcomes into response entries, filling Error for failed models.
func Predictions(outcomes []Outcome) []Prediction {
	preds := make([]Prediction, len(outcomes))
	for i, o := range outcomes {
		preds[i] = o.Prediction
		if o.Err != nil {
			preds[i].Error = o.Err.Error()
		}
	}
	return preds
}

// Succeeded counts the outcomes that produced a prediction.
func Succeeded(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// FormatConfidence renders a percentage with exactly two decimals.
func FormatConfidence(percent float64) string {
	return strconv.FormatFloat(percent, 'f', 2, 64)
}

// FormatProcessingTime renders whole milliseconds, truncated, with an "ms" suffix.
func FormatProcessingTime(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// Argmax returns the index and value of the largest element.
// The first maximum wins ties and a NaN counts as the maximum.
//
// Arguments:
//   - v: The probability vector.
//
// Returns:
//   - int: The index, -1 for an empty vector.
//   - float32: The value at the index.
func Argmax(v []float32) (int, float32) {
	idx, best := -1, math32.Inf(-1)
	for i, x := range v {
		if math32.IsNaN(x) {
			return i, x
		}
		if idx < 0 || x > best {
			idx, best = i, x
		}
	}
	return idx, best
}

// descriptorPrediction seeds a prediction with the static descriptor fields.
func descriptorPrediction(d models.Descriptor) Prediction {
	return Prediction{
		Model:    d.Name,
		Accuracy: d.Accuracy,
		Icon:     d.Icon,
	}
}
