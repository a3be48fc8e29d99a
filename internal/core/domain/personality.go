package domain

// PersonalityConfig shapes how the companion speaks: the system prompt,
// the greeting for new threads, the response length budget in words and
// the sampling temperature. Exactly one active config is the default;
// that invariant is validated where configs are loaded, and assumed by
// the response orchestrator.
type PersonalityConfig struct {
	Name             string  `json:"name" yaml:"name"`
	SystemPrompt     string  `json:"system_prompt" yaml:"system_prompt"`
	Greeting         string  `json:"greeting" yaml:"greeting"`
	MaxResponseWords int     `json:"max_response_words" yaml:"max_response_words"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	Active           bool    `json:"active" yaml:"active"`
	Default          bool    `json:"default" yaml:"default"`
}
