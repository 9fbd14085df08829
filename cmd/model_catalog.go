package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ModelCatalog maps model identifiers to their router configuration. Used to
// supply the configured expert pool size when a capture's meta header lacks
// it.
type ModelCatalog struct {
	Version string         `yaml:"version"`
	Models  []CatalogEntry `yaml:"models"`
}

type CatalogEntry struct {
	ID         string `yaml:"id"`
	NumExperts int    `yaml:"num_experts"`
	TopK       int    `yaml:"top_k"`
}

// LookupExpertPool returns the configured expert pool size for modelID from
// the YAML catalog at path. A missing file, bad YAML, or unknown model logs a
// warning and reports no match; the analysis then runs with observed-pool
// entropy only.
func LookupExpertPool(path, modelID string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Warnf("Model catalog unavailable: %v", err)
		return 0, false
	}

	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logrus.Warnf("Model catalog %s is not valid YAML: %v", path, err)
		return 0, false
	}

	for _, model := range catalog.Models {
		if model.ID == modelID {
			return model.NumExperts, true
		}
	}
	return 0, false
}
