package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchPolicyFile is the document referenced by projection.search_policy_file.
// It is decoded strictly: unknown keys are an error.
//
//	default: name
//	properties:
//	  Movie: title
//	  Course: code
type SearchPolicyFile struct {
	Default    string            `yaml:"default"`
	Properties map[string]string `yaml:"properties"`
}

// LoadSearchPolicyFile reads and strictly decodes a search-policy document.
func LoadSearchPolicyFile(path string) (*SearchPolicyFile, error) {
	// 1. Open File
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search policy file: %w", err)
	}
	defer file.Close()

	// 2. Setup Strict Decoder
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	// 3. Decode
	var policy SearchPolicyFile
	if err := decoder.Decode(&policy); err != nil {
		return nil, fmt.Errorf("YAML syntax error in search policy file %s: %w", path, err)
	}
	return &policy, nil
}

// applySearchPolicyFile merges the file into p. File entries win over the
// inline searchable_properties, label by label, ignoring case.
func applySearchPolicyFile(p *ProjectionConfig) error {
	if p.SearchPolicyFile == "" {
		return nil
	}
	policy, err := LoadSearchPolicyFile(p.SearchPolicyFile)
	if err != nil {
		return err
	}

	merged := make(map[string]string, len(p.SearchableProperties)+len(policy.Properties))
	for label, prop := range p.SearchableProperties {
		merged[label] = prop
	}
	for label, prop := range policy.Properties {
		for existing := range merged {
			if strings.EqualFold(existing, label) {
				delete(merged, existing)
			}
		}
		merged[label] = prop
	}
	p.SearchableProperties = merged

	if d := strings.TrimSpace(policy.Default); d != "" {
		p.DefaultSearchProperty = d
	}
	return nil
}
