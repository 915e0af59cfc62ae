package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/clubemkt/agendai-deploy/internal/deploy"
	"github.com/clubemkt/agendai-deploy/internal/envconfig"
	"github.com/clubemkt/agendai-deploy/internal/resilience"
	"github.com/clubemkt/agendai-deploy/internal/tui"
	"github.com/clubemkt/agendai-deploy/internal/verify"
	"github.com/clubemkt/agendai-deploy/pkg/cmdrunner"
	"github.com/clubemkt/agendai-deploy/pkg/events"
	"github.com/clubemkt/agendai-deploy/pkg/statusreport"
)

func loadRegistry(c *cli.Context) (*envconfig.Registry, error) {
	reg := envconfig.NewRegistry()
	if err := reg.ApplyOverridesFile(c.String("config")); err != nil {
		return nil, err
	}
	return reg, nil
}

func envArg(c *cli.Context) (envconfig.Environment, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("missing environment argument (one of: development, staging, production, preview)")
	}
	return envconfig.Parse(c.Args().First())
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Build the site, push it to Cloudflare Pages and verify the live URL",
		ArgsUsage: "<environment>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Run the pipeline without executing any build or deploy command",
			},
			&cli.BoolFlag{
				Name:  "no-github",
				Usage: "Skip deployment status reporting",
			},
			&cli.BoolFlag{
				Name:  "skip-verify",
				Usage: "Skip post-deployment verification",
			},
			&cli.BoolFlag{
				Name:  "skip-spa",
				Usage: "Skip the SPA routing check during verification",
			},
			&cli.BoolFlag{
				Name:  "skip-assets",
				Usage: "Skip the asset optimization check during verification",
			},
			&cli.Int64Flag{
				Name:  "timeout",
				Value: 600000,
				Usage: "Per-command timeout in milliseconds",
			},
			&cli.Int64Flag{
				Name:  "verify-timeout",
				Value: 30000,
				Usage: "Per-probe verification timeout in milliseconds",
			},
			&cli.StringFlag{
				Name:    "status-url",
				Usage:   "Deployment status API endpoint",
				EnvVars: []string{"AGENDAI_STATUS_URL"},
			},
			&cli.StringFlag{
				Name:    "status-token",
				Usage:   "Bearer token for the status API",
				EnvVars: []string{"AGENDAI_STATUS_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "events-url",
				Usage:   "NATS server for deployment events",
				EnvVars: []string{"AGENDAI_EVENTS_URL"},
			},
		},
		Action: runDeploy,
	}
}

func runDeploy(c *cli.Context) error {
	logger := hclog.Default()

	env, err := envArg(c)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(c)
	if err != nil {
		return err
	}
	cfg, err := reg.Get(env)
	if err != nil {
		return err
	}

	dir := c.String("project-dir")
	dryRun := c.Bool("dry-run")

	validation, err := reg.ValidateEnvironment(env, dir)
	if err != nil {
		return err
	}
	for _, w := range validation.Warnings {
		fmt.Println(tui.RenderWarning(w))
	}
	if !validation.Valid() {
		// A dry run should be previewable without secrets in place.
		if dryRun {
			for _, e := range validation.Errors {
				fmt.Println(tui.RenderWarning(e))
			}
		} else {
			for _, e := range validation.Errors {
				fmt.Println(tui.RenderError(e))
			}
			return fmt.Errorf("environment %s is not ready to deploy", env)
		}
	}

	runner := cmdrunner.NewExecRunner(time.Duration(c.Int64("timeout"))*time.Millisecond, logger)
	handler := resilience.NewHandler(resilience.DefaultRetryConfig(), logger)
	executor := deploy.NewExecutor(cfg, dir, runner, handler, dryRun, logger)

	if !c.Bool("no-github") && c.String("status-url") != "" {
		client, err := statusreport.NewClient(c.String("status-url"), c.String("status-token"), logger)
		if err != nil {
			logger.Warn("status reporting disabled", "error", err)
		} else {
			executor.AddNotifier(client)
		}
	}
	if url := c.String("events-url"); url != "" {
		pub, err := events.Connect(url, logger)
		if err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			defer pub.Close()
			executor.AddNotifier(pub)
		}
	}

	doVerify := !c.Bool("skip-verify") && !dryRun
	verifier := verify.NewVerifier(time.Duration(c.Int64("verify-timeout"))*time.Millisecond, logger)
	opts := verify.Options{
		SkipSPARouting: c.Bool("skip-spa"),
		SkipAssets:     c.Bool("skip-assets"),
	}

	fmt.Println(tui.RenderTitle(fmt.Sprintf("Deploying agendai to %s", env)))

	run := func() *deploy.CompleteResult {
		if doVerify {
			return executor.DeployWithVerification(c.Context, verifier, opts)
		}
		return executor.Deploy(c.Context)
	}

	steps := []string{"build", "deploy"}
	if doVerify {
		steps = append(steps, "verify")
	}

	var result *deploy.CompleteResult
	if c.Bool("verbose") || !isatty.IsTerminal(os.Stdout.Fd()) {
		result = run()
	} else {
		result = runWithStepsDisplay(executor, steps, run)
	}

	return printOutcome(result)
}

// runWithStepsDisplay drives the live checklist from the executor's step
// callbacks while the pipeline runs in a goroutine.
func runWithStepsDisplay(executor *deploy.Executor, steps []string, run func() *deploy.CompleteResult) *deploy.CompleteResult {
	p := tui.ShowSteps(steps)
	idx := make(map[string]int, len(steps))
	for i, s := range steps {
		idx[s] = i
	}

	var result *deploy.CompleteResult
	current := -1
	executor.OnStep = func(step string) {
		if current >= 0 {
			p.Send(tui.StepMsg{Index: current, State: tui.StepSuccess})
		}
		if i, ok := idx[step]; ok {
			current = i
			p.Send(tui.StepMsg{Index: i, State: tui.StepRunning})
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		result = run()
		if current >= 0 {
			state := tui.StepSuccess
			if !result.Success {
				state = tui.StepFailed
			}
			if result.Verification != nil && !result.Verification.Success && steps[current] == "verify" {
				state = tui.StepFailed
			}
			p.Send(tui.StepMsg{Index: current, State: state})
		}
		for i := range steps {
			if i > current {
				p.Send(tui.StepMsg{Index: i, State: tui.StepSkipped})
			}
		}
		p.Send(tui.PipelineDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		// The display can fail (no usable terminal) while the pipeline
		// keeps running; its result is still collected below.
		hclog.Default().Debug("progress display unavailable", "error", err)
	}
	<-done
	return result
}

func printOutcome(result *deploy.CompleteResult) error {
	if result == nil {
		return fmt.Errorf("deployment did not run")
	}

	if !result.Success {
		fmt.Println(tui.RenderError(fmt.Sprintf("deployment to %s failed during %s", result.Environment, result.Stage)))
		if result.Report != nil {
			fmt.Println()
			fmt.Print(result.Report.Report)
		}
		return fmt.Errorf("deployment to %s failed", result.Environment)
	}

	d := result.Deploy
	fmt.Println(tui.RenderSuccess(fmt.Sprintf("deployed to %s", tui.RenderURL(d.URL))))
	if d.PreviewURL != "" {
		fmt.Println(tui.RenderMuted("  preview: " + d.PreviewURL))
	}
	fmt.Println(tui.RenderMuted(fmt.Sprintf("  deployment %s  build %s  deploy %s",
		d.DeploymentID,
		result.Build.BuildTime.Round(time.Millisecond),
		d.DeployTime.Round(time.Millisecond))))
	if d.Rollback != nil && d.Rollback.RollbackAvailable {
		fmt.Println(tui.RenderMuted("  rollback available to " + d.Rollback.PreviousDeploymentID))
	}
	for _, w := range result.Build.Warnings {
		fmt.Println(tui.RenderWarning(w))
	}

	if result.Verification != nil {
		fmt.Println()
		fmt.Print(verify.FormatResults(result.Verification))
		if !result.Verification.Success {
			fmt.Println(tui.RenderWarning("the site is live but verification reported problems"))
		}
	}
	return nil
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Run post-deployment checks against a live environment or URL",
		ArgsUsage: "<environment | url>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "skip-spa",
				Usage: "Skip the SPA routing check",
			},
			&cli.BoolFlag{
				Name:  "skip-assets",
				Usage: "Skip the asset optimization check",
			},
			&cli.Int64Flag{
				Name:  "timeout",
				Value: 30000,
				Usage: "Per-probe timeout in milliseconds",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing argument: pass an environment name or a URL")
			}
			arg := c.Args().First()

			var url string
			if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
				url = arg
			} else {
				env, err := envconfig.Parse(arg)
				if err != nil {
					return err
				}
				reg, err := loadRegistry(c)
				if err != nil {
					return err
				}
				cfg, err := reg.Get(env)
				if err != nil {
					return err
				}
				url = cfg.VerifyURL
			}

			v := verify.NewVerifier(time.Duration(c.Int64("timeout"))*time.Millisecond, hclog.Default())
			opts := verify.Options{
				SkipSPARouting: c.Bool("skip-spa"),
				SkipAssets:     c.Bool("skip-assets"),
			}

			var res *verify.Result
			err := tui.RunWithSpinner("probing "+url, func() (string, error) {
				res = v.Verify(c.Context, url, opts)
				if !res.Success {
					return fmt.Sprintf("%d of %d checks failed", res.Failed, res.Total), errors.New("verification failed")
				}
				return fmt.Sprintf("all %d checks passed", res.Total), nil
			})

			if res != nil {
				fmt.Println()
				fmt.Print(verify.FormatResults(res))
			}
			if err != nil {
				return fmt.Errorf("verification of %s failed", url)
			}
			return nil
		},
	}
}

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:      "rollback",
		Usage:     "Show the most recent deployment and how to roll it back",
		ArgsUsage: "[environment]",
		Action: func(c *cli.Context) error {
			env := envconfig.Production
			if c.NArg() > 0 {
				parsed, err := envconfig.Parse(c.Args().First())
				if err != nil {
					return err
				}
				env = parsed
			}
			reg, err := loadRegistry(c)
			if err != nil {
				return err
			}
			cfg, err := reg.Get(env)
			if err != nil {
				return err
			}

			runner := cmdrunner.NewExecRunner(2*time.Minute, hclog.Default())
			sc := cfg.Deploy.StatusCommand
			res := runner.Run(c.Context, c.String("project-dir"), nil, sc[0], sc[1:]...)
			if res.Err != nil {
				return fmt.Errorf("could not query deployments for %s: %s", env, strings.TrimSpace(res.Output))
			}

			fmt.Print(res.Output)
			fmt.Println()
			fmt.Println(tui.RenderMuted(fmt.Sprintf(
				"To roll back, run: npx wrangler pages deployment rollback <deployment-id> --project-name %s",
				cfg.Deploy.ProjectName)))
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recent deployments of an environment",
		ArgsUsage: "[environment]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 10,
				Usage: "Number of deployments to list",
			},
		},
		Action: func(c *cli.Context) error {
			env := envconfig.Production
			if c.NArg() > 0 {
				parsed, err := envconfig.Parse(c.Args().First())
				if err != nil {
					return err
				}
				env = parsed
			}
			reg, err := loadRegistry(c)
			if err != nil {
				return err
			}
			cfg, err := reg.Get(env)
			if err != nil {
				return err
			}

			args := []string{"wrangler", "pages", "deployment", "list",
				"--project-name", cfg.Deploy.ProjectName,
				"--limit", strconv.Itoa(c.Int("limit"))}

			runner := cmdrunner.NewExecRunner(2*time.Minute, hclog.Default())
			res := runner.Run(c.Context, c.String("project-dir"), nil, "npx", args...)
			if res.Err != nil {
				return fmt.Errorf("could not list deployments for %s: %s", env, strings.TrimSpace(res.Output))
			}
			fmt.Print(res.Output)
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and generate deployment configuration",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print the effective configuration for one or all environments",
				ArgsUsage: "[environment]",
				Action:    runConfigShow,
			},
			{
				Name:      "validate",
				Usage:     "Check that an environment's required variables are set",
				ArgsUsage: "<environment>",
				Action:    runConfigValidate,
			},
			{
				Name:      "env",
				Usage:     "Generate the .env file for an environment from the current process environment",
				ArgsUsage: "<environment>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "write",
						Usage: "Write the file into the project directory instead of printing it",
					},
				},
				Action: runConfigEnv,
			},
			{
				Name:  "wrangler",
				Usage: "Generate a wrangler.toml covering every environment",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "compatibility-date",
						Value: "2025-04-01",
						Usage: "Cloudflare compatibility date to embed",
					},
					&cli.BoolFlag{
						Name:  "write",
						Usage: "Write wrangler.toml into the project directory instead of printing it",
					},
				},
				Action: runConfigWrangler,
			},
		},
	}
}

func runConfigShow(c *cli.Context) error {
	reg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	envs := envconfig.All()
	if c.NArg() > 0 {
		env, err := envconfig.Parse(c.Args().First())
		if err != nil {
			return err
		}
		envs = []envconfig.Environment{env}
	}

	for _, env := range envs {
		cfg, err := reg.Get(env)
		if err != nil {
			return err
		}
		domain := cfg.Domain
		if cfg.CustomDomain {
			domain += " (custom domain)"
		}
		fmt.Println(tui.RenderTitle(string(env)))
		fmt.Printf("  domain:         %s\n", domain)
		fmt.Printf("  build:          %s\n", strings.Join(cfg.BuildCommand, " "))
		fmt.Printf("  deploy:         %s\n", strings.Join(cfg.Deploy.Command, " "))
		fmt.Printf("  output:         %s\n", cfg.OutputDir)
		fmt.Printf("  required vars:  %s\n", strings.Join(cfg.RequiredVars, ", "))
		fmt.Printf("  verify url:     %s\n", cfg.VerifyURL)
		fmt.Println()
	}
	return nil
}

func runConfigValidate(c *cli.Context) error {
	env, err := envArg(c)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	res, err := reg.ValidateEnvironment(env, c.String("project-dir"))
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Println(tui.RenderWarning(w))
	}
	for _, e := range res.Errors {
		fmt.Println(tui.RenderError(e))
	}
	if !res.Valid() {
		return fmt.Errorf("environment %s is not ready to deploy", env)
	}
	fmt.Println(tui.RenderSuccess(fmt.Sprintf("%s is ready to deploy", env)))
	return nil
}

func runConfigEnv(c *cli.Context) error {
	env, err := envArg(c)
	if err != nil {
		return err
	}
	reg, err := loadRegistry(c)
	if err != nil {
		return err
	}
	cfg, err := reg.Get(env)
	if err != nil {
		return err
	}

	values := make(map[string]string, len(cfg.RequiredVars))
	for _, name := range cfg.RequiredVars {
		if v := os.Getenv(name); v != "" {
			values[name] = v
		}
	}

	content, err := reg.GenerateEnvFile(env, values)
	if err != nil {
		return err
	}

	if !c.Bool("write") {
		fmt.Print(content)
		return nil
	}

	path := filepath.Join(c.String("project-dir"), envconfig.EnvFileName(env))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Println(tui.RenderSuccess("wrote " + path))
	return nil
}

func runConfigWrangler(c *cli.Context) error {
	reg, err := loadRegistry(c)
	if err != nil {
		return err
	}

	content, err := reg.GenerateWranglerTOML(c.String("compatibility-date"))
	if err != nil {
		return err
	}

	if !c.Bool("write") {
		fmt.Print(content)
		return nil
	}

	path := filepath.Join(c.String("project-dir"), "wrangler.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Println(tui.RenderSuccess("wrote " + path))
	return nil
}
