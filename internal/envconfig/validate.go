package envconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// ValidationResult reports the outcome of environment validation. Errors
// block a deployment; warnings do not.
type ValidationResult struct {
	Environment Environment
	Errors      []string
	Warnings    []string
}

// Valid reports whether the environment can be deployed.
func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// Err collapses the errors into a single error, nil when valid.
func (v *ValidationResult) Err() error {
	if v.Valid() {
		return nil
	}
	var result *multierror.Error
	for _, e := range v.Errors {
		result = multierror.Append(result, fmt.Errorf("%s", e))
	}
	return result.ErrorOrNil()
}

// ValidateEnvironment checks that every variable the environment requires
// is present and non-blank. Values are resolved from the process
// environment first, then from .env.<environment> in dir when the file
// exists. Whitespace-only values count as missing.
func (r *Registry) ValidateEnvironment(env Environment, dir string) (*ValidationResult, error) {
	cfg, err := r.Get(env)
	if err != nil {
		return nil, err
	}

	res := &ValidationResult{Environment: env}

	fileVars := map[string]string{}
	envFile := EnvFileName(env)
	if dir != "" {
		path := dir + string(os.PathSeparator) + envFile
		if _, statErr := os.Stat(path); statErr == nil {
			fileVars, err = godotenv.Read(path)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("could not parse %s: %v", envFile, err))
				fileVars = map[string]string{}
			}
		}
	}

	for _, name := range cfg.RequiredVars {
		value := os.Getenv(name)
		if strings.TrimSpace(value) == "" {
			value = fileVars[name]
		}
		if strings.TrimSpace(value) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("required variable %s is missing or blank (set it in the environment or %s)", name, envFile))
		}
	}

	// A release environment without its custom domain still deploys to
	// the pages.dev subdomain, so this is only a warning.
	if (env == Production || env == Staging) && !cfg.CustomDomain {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s has no custom domain configured; the site will only be reachable on the platform subdomain", env))
	}

	return res, nil
}

// EnvFileName returns the env-file name for an environment,
// e.g. ".env.production".
func EnvFileName(env Environment) string {
	return ".env." + string(env)
}
