package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Provider is one layer of configuration. Providers are applied in order,
// later providers overriding earlier ones.
type Provider interface {
	Apply(ctx context.Context, k *koanf.Koanf) error
}

// defaultProvider seeds k with Default()'s struct values.
type defaultProvider struct{}

func NewDefaultProvider() Provider { return defaultProvider{} }

func (defaultProvider) Apply(_ context.Context, k *koanf.Koanf) error {
	return k.Load(structs.Provider(Default(), "koanf"), nil)
}

// fileProvider overlays a YAML config file, if it exists. Missing file is
// not an error — the defaults stand.
type fileProvider struct {
	path string
}

func NewFileProvider(path string) Provider { return fileProvider{path: path} }

func (f fileProvider) Apply(_ context.Context, k *koanf.Koanf) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", f.path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", f.path, err)
	}
	return k.Load(confmap.Provider(raw, "."), nil)
}

// envProvider overlays WEAVR_-prefixed environment variables, e.g.
// WEAVR_SCHEDULER__MAX_CONCURRENCY maps to scheduler.max_concurrency (a
// double underscore separates levels).
type envProvider struct{}

func NewEnvProvider() Provider { return envProvider{} }

func (envProvider) Apply(_ context.Context, k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "WEAVR_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, "WEAVR_")
			key = strings.ToLower(key)
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	}), nil)
}

// Service performs the mechanical part of a load: it applies providers in
// order onto a fresh koanf tree and unmarshals the merged result. It holds
// no state of its own, so a single Service can back any number of Managers.
type Service struct{}

func NewService() *Service { return &Service{} }

func (s *Service) build(ctx context.Context, providers []Provider) (*koanf.Koanf, *Config, error) {
	k := koanf.New(".")
	for _, p := range providers {
		if err := p.Apply(ctx, k); err != nil {
			return nil, nil, err
		}
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return k, cfg, nil
}

// Manager owns the merged Config, rebuilt each time Load runs.
type Manager struct {
	service *Service
	k       *koanf.Koanf
	cfg     *Config
}

func NewManager(service *Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{service: service, k: koanf.New(".")}
}

// Load applies providers in order and unmarshals the result into a fresh
// Config, which becomes the Manager's current snapshot.
func (m *Manager) Load(ctx context.Context, providers ...Provider) (*Config, error) {
	k, cfg, err := m.service.build(ctx, providers)
	if err != nil {
		return nil, err
	}
	m.k = k
	m.cfg = cfg
	return cfg, nil
}

// Get returns the last loaded Config, or Default() if Load was never called.
func (m *Manager) Get() *Config {
	if m.cfg == nil {
		return Default()
	}
	return m.cfg
}
