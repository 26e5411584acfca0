package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/smelltrend/internal/logging"
	"github.com/panbanda/smelltrend/internal/output"
	"github.com/panbanda/smelltrend/pkg/config"
	"github.com/panbanda/smelltrend/pkg/store"
)

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	layout store.Layout
	logger *slog.Logger
}

// setup loads and validates the config and builds the logger.
func setup(c *cli.Context) (*env, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(c.App.ErrWriter, logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: c.Bool("verbose"),
	})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, layout: store.New(cfg.Data.Root), logger: logger}, nil
}

// formatter writes to --output, or to the app writer when unset. The global
// --format wins over the configured one.
func (r *env) formatter(c *cli.Context) (*output.Formatter, error) {
	format := c.String("format")
	if format == "" {
		format = r.cfg.Output.Format
	}
	colored := r.cfg.Output.Color && !color.NoColor
	if path := c.String("output"); path != "" {
		return output.NewFormatter(output.ParseFormat(format), path, false)
	}
	return output.NewWriterFormatter(output.ParseFormat(format), c.App.Writer, colored), nil
}

// emit renders data with a fresh formatter.
func (r *env) emit(c *cli.Context, data output.Renderable) error {
	f, err := r.formatter(c)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Output(data)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
