package security

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Policy maps tool names to the transform chain applied to their output.
// A tool absent from Overrides gets the default maximal chain. An override
// with an empty list disables sanitization for that tool entirely, which is
// why the file is reviewed configuration and never mutated at runtime.
type Policy struct {
	// Overrides replaces the default chain for the named tool. Order is
	// significant.
	Overrides map[string][]string `yaml:"overrides"`
}

// policyFile is the on-disk shape of a policy document.
type policyFile struct {
	Overrides map[string][]string `yaml:"overrides"`
}

// LoadPolicy reads a YAML policy file and validates every referenced
// transform name against the registry. Unknown names fail at load so a
// typo'd override can't silently fall back to the default chain.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading security policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing security policy: %w", err)
	}

	registry := Registry()
	for tool, chain := range f.Overrides {
		for _, name := range chain {
			if _, ok := registry[name]; !ok {
				return nil, fmt.Errorf("security policy: tool %q references unknown transform %q", tool, name)
			}
		}
	}

	return &Policy{Overrides: f.Overrides}, nil
}

// DefaultPolicy returns a policy with no overrides: every tool gets the
// maximal chain.
func DefaultPolicy() *Policy {
	return &Policy{Overrides: map[string][]string{}}
}

// ChainFor returns the ordered transform names applied to the given tool.
func (p *Policy) ChainFor(tool string) []string {
	if chain, ok := p.Overrides[tool]; ok {
		return chain
	}
	return DefaultChain()
}

// OverriddenTools lists the tools with explicit overrides, sorted, for
// startup logging and audit output.
func (p *Policy) OverriddenTools() []string {
	tools := make([]string, 0, len(p.Overrides))
	for tool := range p.Overrides {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}
