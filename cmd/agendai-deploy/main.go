package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

var (
	// Build-time variables set via ldflags
	// Example: go build -ldflags "-X main.Version=1.2.0"
	Version = "v1.0.0"
)

func main() {
	app := &cli.App{
		Name:                   "agendai-deploy",
		Usage:                  "Build and deploy the Agendai site to Cloudflare Pages",
		Version:                Version,
		UseShortOptionHandling: true,
		EnableBashCompletion:   true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "agendai-deploy.hcl",
				Usage:   "Path to the environment overrides file",
				EnvVars: []string{"AGENDAI_DEPLOY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "project-dir",
				Value:   ".",
				Usage:   "Root of the site project (where package.json lives)",
				EnvVars: []string{"AGENDAI_PROJECT_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"AGENDAI_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Log every pipeline step (implies --log-level=debug, disables the progress display)",
			},
		},
		Commands: []*cli.Command{
			deployCommand(),
			verifyCommand(),
			rollbackCommand(),
			historyCommand(),
			configCommand(),
		},
		Before: func(c *cli.Context) error {
			level := hclog.LevelFromString(c.String("log-level"))
			if c.Bool("verbose") {
				level = hclog.Debug
			}
			logger := hclog.New(&hclog.LoggerOptions{
				Name:  "agendai-deploy",
				Level: level,
				Color: hclog.AutoColor,
			})
			hclog.SetDefault(logger)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
