// Package envconfig is the static registry of deployment environments for
// the Agendai site: which domain each environment serves, how it is built,
// how it is deployed to Cloudflare Pages, and which variables it requires.
package envconfig

import (
	"fmt"
	"strings"
)

// Environment is one of the deployment targets. It is immutable once
// selected for a run.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Preview     Environment = "preview"
)

// All returns every known environment, in stable order.
func All() []Environment {
	return []Environment{Development, Staging, Production, Preview}
}

// Parse converts a CLI argument into an Environment.
func Parse(s string) (Environment, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(s)))
	switch env {
	case Development, Staging, Production, Preview:
		return env, nil
	default:
		return "", fmt.Errorf("unknown environment %q (expected one of: development, staging, production, preview)", s)
	}
}

// EnvironmentConfig holds everything the pipeline needs to know about one
// environment.
type EnvironmentConfig struct {
	// Name is the environment this config belongs to.
	Name Environment

	// Domain is the hostname the deployed site is served from. For
	// environments without a custom domain this is the pages.dev subdomain.
	Domain string

	// CustomDomain reports whether Domain is a user-owned domain rather
	// than the platform-assigned subdomain. Production and staging are
	// expected to run on custom domains.
	CustomDomain bool

	// BuildCommand is the command that produces the static site,
	// e.g. ["npm", "run", "build:production"].
	BuildCommand []string

	// OutputDir is the directory the build writes, relative to the
	// project root.
	OutputDir string

	// SourceDir is the source tree the build reads from.
	SourceDir string

	// RequiredVars are the environment variables that must be present and
	// non-blank for a build of this environment.
	RequiredVars []string

	// VerifyURL is the URL post-deployment verification probes.
	VerifyURL string

	Deploy DeployTarget
}

// DeployTarget describes how an environment is pushed to the edge platform.
type DeployTarget struct {
	// Command deploys OutputDir, e.g.
	// ["npx", "wrangler", "pages", "deploy", "dist", "--branch", "main"].
	Command []string

	// StatusCommand queries the most recent deployment.
	StatusCommand []string

	// ProjectName is the Cloudflare Pages project.
	ProjectName string

	// Branch is the Pages branch this environment maps onto.
	Branch string

	// SuccessMarkers are substrings of the deploy tool's output that
	// signal success even when the tool exits nonzero. Wrangler has been
	// observed exiting 1 after a completed upload; the markers are
	// configuration because its output format is not under our control.
	SuccessMarkers []string
}

const (
	defaultProject   = "agendai"
	defaultOutputDir = "dist"
	defaultSourceDir = "src"
)

var defaultSuccessMarkers = []string{"✨", "Success"}

// Registry maps environments to their configuration. Construct with
// NewRegistry; zero value is not usable.
type Registry struct {
	envs map[Environment]*EnvironmentConfig
}

// NewRegistry returns a registry populated with the built-in environment
// table. Overrides from an HCL file can be layered on with ApplyOverrides.
func NewRegistry() *Registry {
	r := &Registry{envs: make(map[Environment]*EnvironmentConfig)}

	baseVars := []string{"VITE_SUPABASE_URL", "VITE_SUPABASE_ANON_KEY"}
	releaseVars := append([]string{}, baseVars...)
	releaseVars = append(releaseVars, "VITE_GOOGLE_CLIENT_ID", "VITE_MERCADOPAGO_PUBLIC_KEY")

	r.envs[Development] = &EnvironmentConfig{
		Name:         Development,
		Domain:       "dev.agendai.pages.dev",
		CustomDomain: false,
		BuildCommand: []string{"npm", "run", "build:development"},
		OutputDir:    defaultOutputDir,
		SourceDir:    defaultSourceDir,
		RequiredVars: baseVars,
		VerifyURL:    "https://dev.agendai.pages.dev",
		Deploy:       newDeployTarget("dev"),
	}
	r.envs[Staging] = &EnvironmentConfig{
		Name:         Staging,
		Domain:       "staging.agendai.clubemkt.digital",
		CustomDomain: true,
		BuildCommand: []string{"npm", "run", "build:staging"},
		OutputDir:    defaultOutputDir,
		SourceDir:    defaultSourceDir,
		RequiredVars: releaseVars,
		VerifyURL:    "https://staging.agendai.clubemkt.digital",
		Deploy:       newDeployTarget("staging"),
	}
	r.envs[Production] = &EnvironmentConfig{
		Name:         Production,
		Domain:       "agendai.clubemkt.digital",
		CustomDomain: true,
		BuildCommand: []string{"npm", "run", "build:production"},
		OutputDir:    defaultOutputDir,
		SourceDir:    defaultSourceDir,
		RequiredVars: releaseVars,
		VerifyURL:    "https://agendai.clubemkt.digital",
		Deploy:       newDeployTarget("main"),
	}
	// Preview has no dedicated build script; it reuses the staging build.
	r.envs[Preview] = &EnvironmentConfig{
		Name:         Preview,
		Domain:       "preview.agendai.pages.dev",
		CustomDomain: false,
		BuildCommand: []string{"npm", "run", "build:staging"},
		OutputDir:    defaultOutputDir,
		SourceDir:    defaultSourceDir,
		RequiredVars: baseVars,
		VerifyURL:    "https://preview.agendai.pages.dev",
		Deploy:       newDeployTarget("preview"),
	}

	return r
}

func newDeployTarget(branch string) DeployTarget {
	return DeployTarget{
		Command:        deployCommand(defaultOutputDir, defaultProject, branch),
		StatusCommand:  statusCommand(defaultProject),
		ProjectName:    defaultProject,
		Branch:         branch,
		SuccessMarkers: append([]string{}, defaultSuccessMarkers...),
	}
}

// deployCommand builds the wrangler invocation for the effective output
// dir, project and branch. Overrides that change any of those fields must
// rebuild the command through here so the invocation and the reported
// configuration cannot drift apart.
func deployCommand(outputDir, project, branch string) []string {
	return []string{"npx", "wrangler", "pages", "deploy", outputDir, "--project-name", project, "--branch", branch}
}

func statusCommand(project string) []string {
	return []string{"npx", "wrangler", "pages", "deployment", "list", "--project-name", project, "--limit", "1"}
}

// Get returns the configuration for env.
func (r *Registry) Get(env Environment) (*EnvironmentConfig, error) {
	cfg, ok := r.envs[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q", env)
	}
	return cfg, nil
}

// DeployTargetFor returns the deploy target for env.
func (r *Registry) DeployTargetFor(env Environment) (*DeployTarget, error) {
	cfg, err := r.Get(env)
	if err != nil {
		return nil, err
	}
	return &cfg.Deploy, nil
}
