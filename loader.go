package policykit

import (
	"fmt"
	"os"

	"github.com/fernandezvara/dbkit"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the declarative form of an engine's entity, role, grant
// and policy configuration. Policies loaded from a file use the rule form
// only; predicate builders stay in code.
type ConfigFile struct {
	Entities []EntityDescriptor `yaml:"entities"`
	Roles    []RoleDescriptor   `yaml:"roles,omitempty"`
	Grants   []Grant            `yaml:"grants,omitempty"`
	Policies []RLSPolicy        `yaml:"policies,omitempty"`
}

// ParseConfig parses a YAML configuration document.
func ParseConfig(data []byte) (*ConfigFile, error) {
	var cf ConfigFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, NewError(ErrConfiguration, fmt.Sprintf("cannot parse config: %v", err))
	}
	return &cf, nil
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrConfiguration, fmt.Sprintf("cannot read config file: %v", err))
	}
	return ParseConfig(data)
}

// Apply registers the file's entities into the registry. Registration is
// fail-fast: the first invalid descriptor aborts with its error.
func (cf *ConfigFile) Apply(registry *Registry) error {
	for i := range cf.Entities {
		if err := registry.Register(cf.Entities[i]); err != nil {
			return err
		}
	}
	return nil
}

// EngineConfig builds an engine Config from the file. Roles declared in the
// file become a static role source; omit them to load roles from the
// database table instead.
func (cf *ConfigFile) EngineConfig(db dbkit.IDB) (Config, error) {
	registry := NewRegistry()
	if err := cf.Apply(registry); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DB:       db,
		Registry: registry,
		Grants:   cf.Grants,
		Policies: cf.Policies,
	}
	if len(cf.Roles) > 0 {
		cfg.RoleSource = NewStaticRoleSource(cf.Roles...)
	}
	return cfg, nil
}
