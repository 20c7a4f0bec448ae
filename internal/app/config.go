package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	WorkflowPath string // .hcl file or directory of .hcl files

	LogFormat               string
	LogLevel                string
	WorkerCount             int
	ContinueOnMaxIterations bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
