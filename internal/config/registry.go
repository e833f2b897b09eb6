package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// LanguageSpec describes one enabled language: which image runs it, the
// sandbox resource ceilings, and the queue workers consume.
type LanguageSpec struct {
	Name          string  `yaml:"name"`
	Image         string  `yaml:"image"`
	QueueName     string  `yaml:"queue_name"`
	MemoryLimitMB int64   `yaml:"memory_limit_mb"`
	CPULimit      float64 `yaml:"cpu_limit"`
}

type registryFile struct {
	Languages []LanguageSpec `yaml:"languages"`
}

// Registry is the process-wide immutable language map. It is loaded once at
// startup and only read afterwards.
type Registry struct {
	byLang  map[domain.Language]LanguageSpec
	enabled []domain.Language
}

// DefaultRegistry returns the built-in language set used when no
// configuration file is provided.
func DefaultRegistry() *Registry {
	reg, err := newRegistry([]LanguageSpec{
		{Name: "python", Image: "optimus-python:3.11-v1", QueueName: keyspace.Queue("python"), MemoryLimitMB: 256, CPULimit: 0.5},
		{Name: "java", Image: "optimus-java:17-v1", QueueName: keyspace.Queue("java"), MemoryLimitMB: 512, CPULimit: 1.0},
		{Name: "rust", Image: "optimus-rust:1.75-v1", QueueName: keyspace.Queue("rust"), MemoryLimitMB: 256, CPULimit: 0.5},
	})
	if err != nil {
		// The built-in set is validated by tests; failing here means the
		// defaults themselves are broken.
		panic(err)
	}
	return reg
}

// LoadRegistry reads the registry from a YAML file. An empty path selects
// the built-in defaults.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadRegistry: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadRegistry: parse %s: %w", path, err)
	}
	return newRegistry(f.Languages)
}

func newRegistry(specs []LanguageSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("op=config.newRegistry: no languages configured")
	}
	reg := &Registry{byLang: make(map[domain.Language]LanguageSpec, len(specs))}
	for _, spec := range specs {
		lang, err := domain.ParseLanguage(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("op=config.newRegistry: %w", err)
		}
		if spec.Image == "" {
			return nil, fmt.Errorf("op=config.newRegistry: language %s has no image", lang)
		}
		if want := keyspace.Queue(lang.String()); spec.QueueName != want {
			return nil, fmt.Errorf("op=config.newRegistry: language %s queue %q must be %q", lang, spec.QueueName, want)
		}
		if spec.MemoryLimitMB <= 0 || spec.CPULimit <= 0 {
			return nil, fmt.Errorf("op=config.newRegistry: language %s has non-positive resource limits", lang)
		}
		if _, dup := reg.byLang[lang]; dup {
			return nil, fmt.Errorf("op=config.newRegistry: language %s configured twice", lang)
		}
		reg.byLang[lang] = spec
		reg.enabled = append(reg.enabled, lang)
	}
	return reg, nil
}

// Lookup returns the spec for a language or ErrUnknownLanguage.
func (r *Registry) Lookup(lang domain.Language) (LanguageSpec, error) {
	spec, ok := r.byLang[lang]
	if !ok {
		return LanguageSpec{}, fmt.Errorf("%w: %q", domain.ErrUnknownLanguage, lang)
	}
	return spec, nil
}

// Enabled returns the enabled languages in configuration order.
func (r *Registry) Enabled() []domain.Language {
	out := make([]domain.Language, len(r.enabled))
	copy(out, r.enabled)
	return out
}
