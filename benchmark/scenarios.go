package benchmark

// Scenario defines one benchmark run over the image corpus.
type Scenario struct {
	// Name identifies the scenario in results.
	Name string `json:"name"`
	// Iterations is the number of measured classifications.
	Iterations int `json:"iterations"`
	// WarmupRuns are classifications run before measuring.
	WarmupRuns int `json:"warmup_runs"`
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithIterations sets the number of measured iterations.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// QuickScenarios returns a cold and a warm scenario for a short run.
//
// Arguments:
//   - iterations: The measured iterations of each scenario.
//
// Returns:
//   - []Scenario: The scenarios, cold first.
func QuickScenarios(iterations int) []Scenario {
	return []Scenario{
		NewScenarioBuilder("cold").WithIterations(iterations).WithWarmupRuns(0).Build(),
		NewScenarioBuilder("warm").WithIterations(iterations).WithWarmupRuns(iterations / 10).Build(),
	}
}
