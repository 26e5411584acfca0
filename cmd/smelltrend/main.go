package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "smelltrend",
		Usage:     "Mine code smell evolution across JavaScript and TypeScript histories",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Description: `smelltrend checks out a window of historical revisions of each configured
repository, runs the SonarQube scanner on every one, and turns the issue
reports into longitudinal smell statistics.

Typical run:
  smelltrend init
  smelltrend mine
  smelltrend analyze
  smelltrend report`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"SMELLTREND_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon, yaml (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			initCmd(),
			statusCmd(),
			mineCmd(),
			statsCmd(),
			analyzeCmd(),
			reportCmd(),
		},
	}
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
