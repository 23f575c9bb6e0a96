package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/bamview-paas/internal/core/domain"
)

// PluginConfig is one entry of the plugin registry: everything needed to
// launch that plugin's viewer container.
type PluginConfig struct {
	Image         string            `yaml:"image"`
	SourceRepo    string            `yaml:"source_repo"`
	InternalPort  int               `yaml:"internal_port"`
	HostPort      int               `yaml:"host_port"`
	Env           map[string]string `yaml:"env"`
	URLTemplate   string            `yaml:"url_template"`
	ReadinessPath string            `yaml:"readiness_path"`
}

// Registry resolves plugin names to launch specifications. After loading it
// performs no I/O; Resolve is a pure function of the registry contents and
// the session context.
type Registry struct {
	plugins map[string]PluginConfig
}

// NewRegistry builds a registry from an in-memory plugin map.
func NewRegistry(plugins map[string]PluginConfig) *Registry {
	return &Registry{plugins: plugins}
}

// LoadRegistry reads a YAML document mapping plugin names to their
// deployment configuration.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin registry: %w", err)
	}
	var plugins map[string]PluginConfig
	if err := yaml.Unmarshal(data, &plugins); err != nil {
		return nil, fmt.Errorf("parse plugin registry: %w", err)
	}
	return &Registry{plugins: plugins}, nil
}

// SessionContext carries the per-request identity that resolution may
// substitute into env values and URL templates.
type SessionContext struct {
	SessionID string
	User      string
	// Extra bindings made available to the plugin's URL template,
	// e.g. BAM_URL for the file the viewer should open.
	Extra map[string]string
}

// Resolve produces the LaunchSpec for one session of the named plugin.
// Env values may reference ${SESSION_ID} and ${USER}; they are expanded
// here so the launcher sees literal values only.
func (r *Registry) Resolve(plugin string, sc SessionContext) (domain.LaunchSpec, error) {
	pc, ok := r.plugins[plugin]
	if !ok {
		return domain.LaunchSpec{}, &domain.ConfigurationError{Plugin: plugin, Reason: "not present in registry"}
	}
	if pc.Image == "" && pc.SourceRepo == "" {
		return domain.LaunchSpec{}, &domain.ConfigurationError{Plugin: plugin, Field: "image", Reason: "required (or set source_repo)"}
	}
	if pc.InternalPort == 0 {
		return domain.LaunchSpec{}, &domain.ConfigurationError{Plugin: plugin, Field: "internal_port", Reason: "required"}
	}

	identity := map[string]string{
		"SESSION_ID": sc.SessionID,
		"USER":       sc.User,
	}

	env := make(map[string]string, len(pc.Env))
	for k, tmpl := range pc.Env {
		value, err := domain.RenderTemplate(tmpl, identity)
		if err != nil {
			return domain.LaunchSpec{}, err
		}
		env[k] = value
	}

	bindings := make(map[string]string, len(sc.Extra)+len(identity))
	for k, v := range identity {
		bindings[k] = v
	}
	for k, v := range sc.Extra {
		bindings[k] = v
	}

	image := pc.Image
	if image == "" {
		// Built from source; tag is stable per plugin so rebuilds replace it.
		image = fmt.Sprintf("bamview/%s:latest", plugin)
	}

	readinessPath := pc.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/"
	}

	return domain.LaunchSpec{
		Plugin:        plugin,
		Image:         image,
		SourceRepo:    pc.SourceRepo,
		InternalPort:  pc.InternalPort,
		HostPort:      pc.HostPort,
		Env:           env,
		URLTemplate:   pc.URLTemplate,
		ReadinessPath: readinessPath,
		URLBindings:   bindings,
	}, nil
}
