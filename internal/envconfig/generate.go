package envconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// GenerateEnvFile renders the content of .env.<environment> from the given
// values. Keys are emitted in sorted order; required variables without a
// value are emitted as commented placeholders so the operator can see what
// is still needed. Pure string builder, writing the file is the caller's
// concern.
func (r *Registry) GenerateEnvFile(env Environment, values map[string]string) (string, error) {
	cfg, err := r.Get(env)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Agendai %s environment\n", env)
	fmt.Fprintf(&sb, "# Generated by agendai-deploy; values here are read at build time.\n\n")

	seen := make(map[string]bool)
	for _, name := range cfg.RequiredVars {
		seen[name] = true
		if v, ok := values[name]; ok && strings.TrimSpace(v) != "" {
			fmt.Fprintf(&sb, "%s=%s\n", name, v)
		} else {
			fmt.Fprintf(&sb, "# %s= (required)\n", name)
		}
	}

	var extras []string
	for name := range values {
		if !seen[name] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	if len(extras) > 0 {
		sb.WriteString("\n")
		for _, name := range extras {
			fmt.Fprintf(&sb, "%s=%s\n", name, values[name])
		}
	}

	return sb.String(), nil
}

// wranglerConfig mirrors the subset of wrangler.toml that Pages reads.
type wranglerConfig struct {
	Name              string           `toml:"name"`
	CompatibilityDate string           `toml:"compatibility_date"`
	PagesBuildOutput  string           `toml:"pages_build_output_dir"`
	Env               map[string]wrEnv `toml:"env,omitempty"`
}

type wrEnv struct {
	Vars map[string]string `toml:"vars,omitempty"`
}

// GenerateWranglerTOML renders a wrangler.toml covering every registered
// environment. Pure: the caller decides whether and where to write it.
func (r *Registry) GenerateWranglerTOML(compatibilityDate string) (string, error) {
	prod, err := r.Get(Production)
	if err != nil {
		return "", err
	}

	cfg := wranglerConfig{
		Name:              prod.Deploy.ProjectName,
		CompatibilityDate: compatibilityDate,
		PagesBuildOutput:  prod.OutputDir,
		Env:               make(map[string]wrEnv),
	}

	for _, env := range All() {
		ec, err := r.Get(env)
		if err != nil {
			return "", err
		}
		cfg.Env[string(env)] = wrEnv{
			Vars: map[string]string{
				"VITE_APP_URL": ec.VerifyURL,
			},
		}
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal wrangler config: %w", err)
	}
	return string(out), nil
}
