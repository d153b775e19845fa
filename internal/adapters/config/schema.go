package config

// Memofile represents the structure of the memo.yaml configuration file.
type Memofile struct {
	Version string             `yaml:"version"`
	Steps   map[string]StepDTO `yaml:"steps"`
}

// StepDTO represents one step definition in the configuration.
type StepDTO struct {
	Kind    string   `yaml:"kind"`
	Inputs  []string `yaml:"inputs"`
	Run     string   `yaml:"run"`
	Context string   `yaml:"context"`
}
