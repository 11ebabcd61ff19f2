package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/policy"
)

// PolicyDocument is the on-disk bootstrap form of the policy registry: the
// intent allow-list plus starting trust per route.
type PolicyDocument struct {
	Intents []IntentEntry      `yaml:"intents" json:"intents"`
	Trust   map[string]float64 `yaml:"trust,omitempty" json:"trust,omitempty"`
}

// IntentEntry is one allow-list row.
type IntentEntry struct {
	Primary  string   `yaml:"primary" json:"primary"`
	Modifier string   `yaml:"modifier" json:"modifier"`
	Harmonic int      `yaml:"harmonic" json:"harmonic"`
	Routes   []string `yaml:"routes" json:"routes"`
}

// LoadPolicy reads and validates a policy YAML file.
func LoadPolicy(path string) (*PolicyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}

	var doc PolicyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}

	for i, entry := range doc.Intents {
		if entry.Primary == "" {
			return nil, fmt.Errorf("policy %q: intent %d has empty primary", path, i)
		}
		if entry.Harmonic < 1 || entry.Harmonic > 7 {
			return nil, fmt.Errorf("policy %q: intent %d harmonic %d out of range", path, i, entry.Harmonic)
		}
	}
	for route, trust := range doc.Trust {
		if trust < 0 || trust > 1 {
			return nil, fmt.Errorf("policy %q: trust for route %q out of range: %v", path, route, trust)
		}
	}

	return &doc, nil
}

// Apply registers every intent and trust value in the document. Existing
// allow-lists for the same intent key are replaced, not merged.
func (d *PolicyDocument) Apply(ctx context.Context, reg policy.Registry) error {
	for _, entry := range d.Intents {
		key := contracts.IntentKey{
			Primary:  entry.Primary,
			Modifier: entry.Modifier,
			Harmonic: entry.Harmonic,
		}
		if err := reg.RegisterIntent(ctx, key, entry.Routes); err != nil {
			return fmt.Errorf("register intent (%s, %s, %d): %w", key.Primary, key.Modifier, key.Harmonic, err)
		}
	}
	for route, trust := range d.Trust {
		if err := reg.SetTrust(ctx, route, trust); err != nil {
			return fmt.Errorf("set trust for route %q: %w", route, err)
		}
	}
	return nil
}
