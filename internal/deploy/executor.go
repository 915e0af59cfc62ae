// Package deploy drives the full deployment pipeline for one environment:
// build, push to Cloudflare Pages, record the outcome, and notify whoever
// is listening. The executor composes the build orchestrator, the command
// runner and the error handler; it owns no policy of its own beyond
// sequencing.
package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/clubemkt/agendai-deploy/internal/build"
	"github.com/clubemkt/agendai-deploy/internal/envconfig"
	"github.com/clubemkt/agendai-deploy/internal/resilience"
	"github.com/clubemkt/agendai-deploy/internal/verify"
	"github.com/clubemkt/agendai-deploy/pkg/cmdrunner"
	"github.com/clubemkt/agendai-deploy/pkg/statusreport"
)

// Notifier receives deployment status updates. Both the HTTP status
// reporter and the NATS publisher satisfy it. Notifications are
// best-effort everywhere: a notifier error is logged and dropped, never
// allowed to fail a deployment.
type Notifier interface {
	Notify(ctx context.Context, update statusreport.Update) error
}

// RollbackInfo describes the fallback position after this deployment.
type RollbackInfo struct {
	PreviousDeploymentID string
	PreviousURL          string
	RollbackAvailable    bool
}

// DeploymentResult is the outcome of the push-to-platform step.
type DeploymentResult struct {
	Success      bool
	DeployTime   time.Duration
	URL          string
	PreviewURL   string
	DeploymentID string
	Error        string
	Rollback     *RollbackInfo
}

// CompleteResult is the outcome of a full pipeline run.
type CompleteResult struct {
	Environment envconfig.Environment
	Success     bool

	// Stage names the step that failed: "pre-validation", "cleanup",
	// "build", "validation" or "deploy". Empty on success.
	Stage string

	Build  *build.OrchestrationResult
	Deploy *DeploymentResult

	// Report is the operator-facing error report, nil on success.
	Report *resilience.ErrorReport

	// Verification is populated by DeployWithVerification only.
	Verification *verify.Result
}

// Executor runs deployments for one environment. Construct with
// NewExecutor; add notifiers with AddNotifier before deploying.
type Executor struct {
	// OnStep, when set, is called as each pipeline step starts: "build",
	// "deploy", "verify". The CLI uses it to drive its progress display.
	OnStep func(step string)

	cfg       *envconfig.EnvironmentConfig
	rootDir   string
	runner    cmdrunner.Runner
	handler   *resilience.Handler
	builder   *build.Orchestrator
	notifiers []Notifier
	dryRun    bool
	logger    hclog.Logger
}

// NewExecutor creates an executor for cfg's environment, rooted at the
// project directory. With dryRun set, no external command runs and the
// deployment result is synthetic.
func NewExecutor(cfg *envconfig.EnvironmentConfig, rootDir string, runner cmdrunner.Runner, handler *resilience.Handler, dryRun bool, logger hclog.Logger) *Executor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if handler == nil {
		handler = resilience.NewHandler(resilience.DefaultRetryConfig(), logger)
	}
	return &Executor{
		cfg:     cfg,
		rootDir: rootDir,
		runner:  runner,
		handler: handler,
		builder: build.NewOrchestrator(cfg, rootDir, runner, dryRun, logger),
		dryRun:  dryRun,
		logger:  logger.Named("deploy"),
	}
}

// AddNotifier registers a status notifier. Nil notifiers are ignored.
func (e *Executor) AddNotifier(n Notifier) {
	if n != nil {
		e.notifiers = append(e.notifiers, n)
	}
}

// ExecuteBuild runs the build pipeline, retrying transient failures. The
// returned result is always non-nil; the error is the classified cause of
// the last failed attempt, nil on success.
func (e *Executor) ExecuteBuild(ctx context.Context) (*build.OrchestrationResult, error) {
	var last *build.OrchestrationResult

	err := e.handler.Retrier.Do(ctx, "build", func(ctx context.Context) error {
		res := e.builder.Orchestrate(ctx)
		last = res
		if res.Success {
			return nil
		}
		if res.Err != nil {
			return res.Err
		}
		return resilience.NewOpError(resilience.KindUnknown, fmt.Sprintf("build failed at %s", res.FailedStage), res.Error, nil)
	})
	return last, err
}

// ExecuteDeployment pushes the current build output to the platform,
// retrying transient failures, and records the outcome in the ledger. In
// dry-run mode nothing is executed and a synthetic success is returned.
func (e *Executor) ExecuteDeployment(ctx context.Context) (*DeploymentResult, error) {
	if e.dryRun {
		result := &DeploymentResult{
			Success:      true,
			DeployTime:   0,
			URL:          fmt.Sprintf("https://example-%s.pages.dev", e.cfg.Name),
			DeploymentID: uuid.NewString(),
		}
		e.logger.Info("dry run: skipping deploy command",
			"command", strings.Join(e.cfg.Deploy.Command, " "),
			"url", result.URL)
		e.handler.Ledger.Append(result.DeploymentID, result.URL, true)
		result.Rollback = e.rollbackInfo()
		return result, nil
	}

	cmd := e.cfg.Deploy.Command
	e.logger.Info("deploying", "environment", e.cfg.Name, "project", e.cfg.Deploy.ProjectName, "branch", e.cfg.Deploy.Branch)

	var output string
	var deployTime time.Duration

	err := e.handler.Retrier.Do(ctx, "deploy", func(ctx context.Context) error {
		res := e.runner.Run(ctx, e.rootDir, nil, cmd[0], cmd[1:]...)
		output = res.Output
		deployTime = res.Duration
		if res.Err == nil {
			return nil
		}

		// Wrangler has been seen exiting nonzero after the upload already
		// completed. When the output carries a success marker, trust the
		// output over the exit code.
		if containsAny(res.Output, e.cfg.Deploy.SuccessMarkers) {
			e.logger.Warn("deploy command exited nonzero but output indicates success",
				"exit_code", res.ExitCode)
			return nil
		}

		msg := fmt.Sprintf("deploy command failed with exit code %d", res.ExitCode)
		if res.TimedOut {
			msg = "deploy command timed out"
		}
		return resilience.NewOpError(resilience.KindUnknown, msg, res.Output, res.Err)
	})

	if err != nil {
		result := &DeploymentResult{
			Success:    false,
			DeployTime: deployTime,
			Error:      err.Error(),
		}
		e.handler.Ledger.Append(uuid.NewString(), "", false)
		result.Rollback = e.rollbackInfo()
		return result, err
	}

	parsed := ParseDeploymentOutput(output)
	result := &DeploymentResult{
		Success:      true,
		DeployTime:   deployTime,
		URL:          parsed.URL,
		PreviewURL:   parsed.PreviewURL,
		DeploymentID: parsed.DeploymentID,
	}
	if result.URL == "" {
		result.URL = "https://" + e.cfg.Domain
	}
	if result.DeploymentID == "" {
		result.DeploymentID = uuid.NewString()
	}

	e.handler.Ledger.Append(result.DeploymentID, result.URL, true)
	result.Rollback = e.rollbackInfo()

	e.logger.Info("deployment completed",
		"url", result.URL,
		"deployment_id", result.DeploymentID,
		"duration", deployTime)
	return result, nil
}

func (e *Executor) rollbackInfo() *RollbackInfo {
	rb, err := e.handler.Ledger.RollbackTarget()
	if err != nil {
		return &RollbackInfo{}
	}
	return &RollbackInfo{
		PreviousDeploymentID: rb.Target.ID,
		PreviousURL:          rb.PreviousURL,
		RollbackAvailable:    true,
	}
}

// Deploy runs the full pipeline: pending notification, build, deploy,
// terminal notification. A build failure stops the run before any deploy
// command is attempted and is attributed to the build stage that failed.
func (e *Executor) Deploy(ctx context.Context) *CompleteResult {
	result := &CompleteResult{Environment: e.cfg.Name}

	e.notify(ctx, statusreport.Update{
		Status:      statusreport.StatusPending,
		Environment: string(e.cfg.Name),
		Description: fmt.Sprintf("deployment to %s started", e.cfg.Name),
	})

	e.step("build")
	buildRes, buildErr := e.ExecuteBuild(ctx)
	result.Build = buildRes
	if buildErr != nil {
		result.Stage = string(buildRes.FailedStage)
		result.Report = e.handler.HandleError(buildErr, result.Stage)
		e.notify(ctx, statusreport.Update{
			Status:      statusreport.StatusFailure,
			Environment: string(e.cfg.Name),
			Description: fmt.Sprintf("deployment failed during %s", result.Stage),
			BuildTimeMS: buildRes.BuildTime.Milliseconds(),
			Error:       buildErr.Error(),
		})
		return result
	}

	e.step("deploy")
	deployRes, deployErr := e.ExecuteDeployment(ctx)
	result.Deploy = deployRes
	if deployErr != nil {
		result.Stage = "deploy"
		result.Report = e.handler.HandleError(deployErr, result.Stage)
		e.notify(ctx, statusreport.Update{
			Status:       statusreport.StatusFailure,
			Environment:  string(e.cfg.Name),
			Description:  "deployment failed during deploy",
			BuildTimeMS:  buildRes.BuildTime.Milliseconds(),
			DeployTimeMS: deployRes.DeployTime.Milliseconds(),
			Error:        deployErr.Error(),
		})
		return result
	}

	result.Success = true
	e.notify(ctx, statusreport.Update{
		Status:       statusreport.StatusSuccess,
		Environment:  string(e.cfg.Name),
		Description:  fmt.Sprintf("deployed to %s", deployRes.URL),
		URL:          deployRes.URL,
		PreviewURL:   deployRes.PreviewURL,
		BuildTimeMS:  buildRes.BuildTime.Milliseconds(),
		DeployTimeMS: deployRes.DeployTime.Milliseconds(),
	})
	return result
}

// DeployWithVerification runs Deploy and, on success, probes the live URL.
// A failed verification is reported but does not retroactively fail the
// deployment; the site is already live and the operator decides what to do.
// Dry runs skip verification since the synthetic URL does not exist.
func (e *Executor) DeployWithVerification(ctx context.Context, verifier *verify.Verifier, opts verify.Options) *CompleteResult {
	result := e.Deploy(ctx)
	if !result.Success || e.dryRun {
		return result
	}

	url := e.cfg.VerifyURL
	if url == "" && result.Deploy != nil {
		url = result.Deploy.URL
	}
	if url == "" {
		return result
	}

	e.step("verify")
	result.Verification = verifier.Verify(ctx, url, opts)
	if !result.Verification.Success {
		e.logger.Warn("post-deployment verification failed",
			"url", url,
			"failed_checks", result.Verification.Failed)
	}
	return result
}

// Rollback describes the most recent known-good deployment from this
// session's ledger.
func (e *Executor) Rollback() (*resilience.Rollback, error) {
	return e.handler.Ledger.RollbackTarget()
}

// History returns this session's deployment records, oldest first.
func (e *Executor) History() []resilience.Record {
	return e.handler.Ledger.History()
}

func (e *Executor) step(name string) {
	if e.OnStep != nil {
		e.OnStep(name)
	}
}

func (e *Executor) notify(ctx context.Context, update statusreport.Update) {
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, update); err != nil {
			e.logger.Warn("status notification failed", "status", update.Status, "error", err)
		}
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
