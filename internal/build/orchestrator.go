// Package build produces a validated static build of the Agendai site for
// one environment: pre-flight checks, cleanup of stale output, the build
// command itself, and analysis of the produced assets.
package build

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/clubemkt/agendai-deploy/internal/envconfig"
	"github.com/clubemkt/agendai-deploy/internal/resilience"
	"github.com/clubemkt/agendai-deploy/pkg/cmdrunner"
)

// Stage names a step of the build pipeline. A failed orchestration is
// tagged with the stage it stopped at.
type Stage string

const (
	StagePreValidation Stage = "pre-validation"
	StageCleanup       Stage = "cleanup"
	StageBuild         Stage = "build"
	StageValidation    Stage = "validation"
)

// Result is the outcome of one build attempt.
type Result struct {
	Success   bool
	BuildTime time.Duration
	OutputDir string
	Error     string
	Assets    *Assets
}

// OrchestrationResult tags a build result with the stage that failed, if
// any, and the warnings collected along the way.
type OrchestrationResult struct {
	Result
	FailedStage Stage
	Warnings    []string

	// Err is the classified error behind a failed stage, nil on success.
	// Callers deciding retry eligibility need the error kind, which the
	// flattened Error string no longer carries.
	Err error
}

// Orchestrator runs the build pipeline for one environment. Construct with
// NewOrchestrator.
type Orchestrator struct {
	cfg     *envconfig.EnvironmentConfig
	rootDir string
	runner  cmdrunner.Runner
	dryRun  bool
	logger  hclog.Logger
}

// NewOrchestrator creates a build orchestrator rooted at rootDir. With
// dryRun set, the build command is never executed and a synthetic success
// is returned instead.
func NewOrchestrator(cfg *envconfig.EnvironmentConfig, rootDir string, runner cmdrunner.Runner, dryRun bool, logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{
		cfg:     cfg,
		rootDir: rootDir,
		runner:  runner,
		dryRun:  dryRun,
		logger:  logger.Named("build"),
	}
}

// PreValidate checks that everything the build needs exists before any
// command runs: the manifest, the build-tool config, the source tree and
// the environment's build script. All problems are accumulated rather than
// stopping at the first.
func (o *Orchestrator) PreValidate() error {
	var result *multierror.Error

	manifest := filepath.Join(o.rootDir, "package.json")
	if _, err := os.Stat(manifest); err != nil {
		result = multierror.Append(result, fmt.Errorf("package.json not found in %s", o.rootDir))
	} else if err := o.checkBuildScript(manifest); err != nil {
		result = multierror.Append(result, err)
	}

	if !o.hasViteConfig() {
		result = multierror.Append(result, fmt.Errorf("vite config not found (expected vite.config.ts or vite.config.js)"))
	}

	srcDir := filepath.Join(o.rootDir, o.cfg.SourceDir)
	if info, err := os.Stat(srcDir); err != nil || !info.IsDir() {
		result = multierror.Append(result, fmt.Errorf("source directory %s is missing", o.cfg.SourceDir))
	}

	return result.ErrorOrNil()
}

func (o *Orchestrator) hasViteConfig() bool {
	for _, name := range []string{"vite.config.ts", "vite.config.js", "vite.config.mjs"} {
		if _, err := os.Stat(filepath.Join(o.rootDir, name)); err == nil {
			return true
		}
	}
	return false
}

// checkBuildScript verifies the environment's build script is declared in
// package.json. The build command is ["npm", "run", "<script>", ...]; only
// npm-run commands can be checked this way.
func (o *Orchestrator) checkBuildScript(manifestPath string) error {
	if len(o.cfg.BuildCommand) < 3 || o.cfg.BuildCommand[1] != "run" {
		return nil
	}
	script := o.cfg.BuildCommand[2]

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("could not read package.json: %w", err)
	}

	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("could not parse package.json: %w", err)
	}

	if _, ok := manifest.Scripts[script]; !ok {
		return fmt.Errorf("package.json is missing the %q script required for the %s environment", script, o.cfg.Name)
	}
	return nil
}

// Clean removes any prior build output so the next build reflects only the
// current source tree. Failure to remove is a warning, not fatal; the
// returned string is the warning text, empty when clean.
func (o *Orchestrator) Clean() string {
	outDir := filepath.Join(o.rootDir, o.cfg.OutputDir)
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return ""
	}
	if err := os.RemoveAll(outDir); err != nil {
		o.logger.Warn("could not remove previous build output", "dir", outDir, "error", err)
		return fmt.Sprintf("could not remove previous build output %s: %v (stale files may remain)", outDir, err)
	}
	o.logger.Debug("removed previous build output", "dir", outDir)
	return ""
}

// Run executes the environment's build command. In dry-run mode it returns
// a synthetic success without running anything. The returned error, when
// non-nil, is a classified *resilience.OpError so the retrier can decide
// eligibility.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	outDir := filepath.Join(o.rootDir, o.cfg.OutputDir)

	if o.dryRun {
		o.logger.Info("dry run: skipping build command", "command", strings.Join(o.cfg.BuildCommand, " "))
		return &Result{Success: true, BuildTime: 0, OutputDir: outDir}, nil
	}

	cmd := o.cfg.BuildCommand
	o.logger.Info("running build", "environment", o.cfg.Name, "command", strings.Join(cmd, " "))

	res := o.runner.Run(ctx, o.rootDir, nil, cmd[0], cmd[1:]...)
	if res.Err != nil {
		msg := fmt.Sprintf("build command failed with exit code %d", res.ExitCode)
		if res.TimedOut {
			msg = "build command timed out"
		}
		opErr := resilience.NewOpError(resilience.KindUnknown, msg, res.Output, res.Err)
		o.logger.Error("build failed", "exit_code", res.ExitCode, "kind", opErr.Kind, "duration", res.Duration)
		return &Result{Success: false, BuildTime: res.Duration, OutputDir: outDir, Error: opErr.Error()}, opErr
	}

	o.logger.Info("build completed", "duration", res.Duration)
	return &Result{Success: true, BuildTime: res.Duration, OutputDir: outDir}, nil
}

// Orchestrate runs the full pipeline in strict order: pre-validation,
// cleanup, build, output validation. It short-circuits at the first failed
// stage; deployment must never run against stale or partial output.
func (o *Orchestrator) Orchestrate(ctx context.Context) *OrchestrationResult {
	out := &OrchestrationResult{}

	if err := o.PreValidate(); err != nil {
		out.FailedStage = StagePreValidation
		out.Error = err.Error()
		out.Err = resilience.NewOpError(resilience.KindConfiguration, "pre-validation failed", "", err)
		return out
	}

	if warning := o.Clean(); warning != "" {
		out.Warnings = append(out.Warnings, warning)
	}

	res, err := o.Run(ctx)
	out.Result = *res
	if err != nil {
		out.FailedStage = StageBuild
		out.Err = err
		return out
	}

	if !o.dryRun {
		validation := o.ValidateOutput()
		out.Warnings = append(out.Warnings, validation.Warnings...)
		if !validation.Valid {
			out.Success = false
			out.FailedStage = StageValidation
			out.Error = strings.Join(validation.Errors, "; ")
			out.Err = resilience.NewOpError(resilience.KindConfiguration, "build output validation failed", strings.Join(validation.Errors, "\n"), nil)
			return out
		}
		out.Assets = validation.Assets
	}

	out.Success = true
	return out
}
