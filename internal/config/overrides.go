package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is the optional YAML overlay for the deployment knobs operators
// tend to version alongside manifests rather than inject as environment
// variables: sidecar wiring and queue topic naming. Empty fields leave the
// environment-derived value untouched.
type Overrides struct {
	KGSidecarURL string `yaml:"kg_sidecar_url"`
	QueueTopic   string `yaml:"queue_topic"`
	RedisURL     string `yaml:"redis_url"`
}

// loadOverrides reads the YAML overrides file at path. A missing file is not
// an error; a malformed one is.
func loadOverrides(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return o, fmt.Errorf("config: read overrides file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("config: parse overrides file %q: %w", path, err)
	}
	return o, nil
}

func (c *Config) applyOverrides(o Overrides) {
	if o.KGSidecarURL != "" {
		c.KGSidecar = o.KGSidecarURL
	}
	if o.QueueTopic != "" {
		c.Queue.Topic = o.QueueTopic
	}
	if o.RedisURL != "" {
		c.Queue.RedisURL = o.RedisURL
	}
}
