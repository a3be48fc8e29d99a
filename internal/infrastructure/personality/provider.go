// Package personality loads companion personality configurations from a
// YAML file and resolves the active default.
package personality

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aurawell/companion-backend/internal/core/domain"
)

type personalityFile struct {
	Personalities []domain.PersonalityConfig `yaml:"personalities"`
}

// Provider serves personality configs resolved once at startup. The set
// is immutable after Load, so lookups need no locking.
type Provider struct {
	byName map[string]domain.PersonalityConfig
	def    domain.PersonalityConfig
}

// Load reads personality configs from path. A missing file falls back
// to the built-in persona; a present but invalid file is an error.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("personalities_file_missing", "path", path)
			return New([]domain.PersonalityConfig{builtinPersonality()})
		}
		return nil, fmt.Errorf("read personalities file: %w", err)
	}

	var file personalityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse personalities file: %w", err)
	}
	return New(file.Personalities)
}

// New validates the config set: at least one active config, and exactly
// one active config flagged as default.
func New(configs []domain.PersonalityConfig) (*Provider, error) {
	if len(configs) == 0 {
		return nil, errors.New("personalities: empty config set")
	}

	p := &Provider{byName: make(map[string]domain.PersonalityConfig, len(configs))}
	defaults := 0
	active := 0
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, errors.New("personalities: config with empty name")
		}
		if _, dup := p.byName[cfg.Name]; dup {
			return nil, fmt.Errorf("personalities: duplicate name %q", cfg.Name)
		}
		p.byName[cfg.Name] = cfg

		if !cfg.Active {
			continue
		}
		active++
		if cfg.Default {
			defaults++
			p.def = cfg
		}
	}

	if active == 0 {
		return nil, errors.New("personalities: no active config")
	}
	if defaults != 1 {
		return nil, fmt.Errorf("personalities: %d active configs flagged default, want exactly 1", defaults)
	}
	return p, nil
}

func (p *Provider) Default() (domain.PersonalityConfig, error) {
	return p.def, nil
}

func (p *Provider) ByName(name string) (domain.PersonalityConfig, error) {
	cfg, ok := p.byName[name]
	if !ok {
		return domain.PersonalityConfig{}, fmt.Errorf("personality %q: %w", name, domain.ErrNotFound)
	}
	return cfg, nil
}

// builtinPersonality keeps the service conversational when no config
// file is deployed.
func builtinPersonality() domain.PersonalityConfig {
	return domain.PersonalityConfig{
		Name: "aura",
		SystemPrompt: "You are Aura, a warm and supportive health companion. " +
			"You listen first, answer in plain language, and encourage small sustainable steps. " +
			"You are not a medical professional and you say so when a question needs one.",
		Greeting:         "Hi, I'm Aura. How are you feeling today?",
		MaxResponseWords: 120,
		Temperature:      0.7,
		Active:           true,
		Default:          true,
	}
}
