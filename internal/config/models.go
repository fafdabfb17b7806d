package config

// ModelsConfig is the model catalog file. Declaration order is significant:
// it breaks cost ties deterministically.
type ModelsConfig struct {
	Models []ModelConfig `yaml:"models"`
}

type ModelConfig struct {
	Key                  string  `yaml:"key"`
	Provider             string  `yaml:"provider"`
	Tier                 string  `yaml:"tier"`
	InputCostPerMillion  float64 `yaml:"input_cost_per_million"`
	OutputCostPerMillion float64 `yaml:"output_cost_per_million"`
	MaxTokens            int     `yaml:"max_tokens"`
	SupportsTools        bool    `yaml:"supports_tools"`
	SupportsStreaming    bool    `yaml:"supports_streaming"`
}
