package inference

import (
	"math/rand/v2"
	"time"

	"github.com/nvr-ai/tumorclassifier/models"
)

// LatencyRange bounds the simulated processing time reported in demo mode.
type LatencyRange struct {
	MinMS int `json:"min_ms" yaml:"min_ms" mapstructure:"min_ms" validate:"gte=0"`
	MaxMS int `json:"max_ms" yaml:"max_ms" mapstructure:"max_ms" validate:"gtefield=MinMS"`
}

// DefaultLatencyRange returns the simulated range of 154 to 441 ms.
func DefaultLatencyRange() LatencyRange {
	return LatencyRange{MinMS: 154, MaxMS: 441}
}

// Sample draws a uniform duration in [MinMS, MaxMS].
func (l LatencyRange) Sample(rng *rand.Rand) time.Duration {
	span := l.MaxMS - l.MinMS
	ms := l.MinMS
	if span > 0 {
		ms += rng.IntN(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// DemoPredictions returns the fixed demo result of every registered model.
// Only the processing time varies between calls.
//
// Arguments:
//   - registry: The model registry.
//   - rng: The random source for simulated latency.
//   - latency: The simulated latency range.
//
// Returns:
//   - []Outcome: One successful outcome per model, in registry order.
func DemoPredictions(registry *models.Registry, rng *rand.Rand, latency LatencyRange) []Outcome {
	descs := registry.Descriptors()
	outcomes := make([]Outcome, len(descs))
	for i, d := range descs {
		p := descriptorPrediction(d)
		p.Prediction = d.Demo.Class
		p.Confidence = FormatConfidence(d.Demo.Confidence)
		p.ProcessingTime = FormatProcessingTime(latency.Sample(rng))
		outcomes[i] = Outcome{Prediction: p}
	}
	return outcomes
}
