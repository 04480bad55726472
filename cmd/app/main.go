package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pfdl/internal"
	"github.com/starford/pfdl/internal/codec"
	pkgconfig "github.com/starford/pfdl/pkg/config"
)

var version = "dev"

// resolveRoots makes relative local roots absolute against the working
// directory. URIs are left as they are.
func resolveRoots(roots []string) ([]string, error) {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.Contains(r, "://") || filepath.IsAbs(r) {
			out = append(out, r)
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", r, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// loadConfig reads the config file, when present, and applies the flags
// that override it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	if roots := cmd.StringSlice("roots"); len(roots) > 0 {
		resolved, err := resolveRoots(roots)
		if err != nil {
			return nil, err
		}
		cfg.Roots = resolved
	}
	return cfg, nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := codec.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return internal.Check(ctx, internal.CheckOptions{
		Format:        format,
		SkipDocuments: cmd.Bool("skip-documents"),
		Out:           os.Stdout,
	}, internal.WithConfig(cfg), internal.WithVersion(version))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func rootsFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "roots",
		Aliases: []string{"r"},
		Usage:   "Dataset roots (absolute or relative paths, s3://, gs://, az:// URIs); overrides the config",
		Sources: cli.EnvVars("PFDL_ROOTS"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "pfdl",
		Usage:   "Reconcile and validate phenopacket datasets spread over storage roots",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the config",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Check the dataset once and print the report",
				Action: check,
				Flags: []cli.Flag{
					rootsFlag(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report encoding: json, canonical or cbor",
						Value: string(codec.JSON),
					},
					&cli.BoolFlag{
						Name:  "skip-documents",
						Usage: "Only reconcile the batches; do not validate phenopackets",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the latest check over HTTP and re-check when local roots change",
				Action: serve,
				Flags:  []cli.Flag{rootsFlag()},
			},
			{
				Name:   "mcp",
				Usage:  "Serve check tools over the Model Context Protocol on stdio",
				Action: mcp,
				Flags:  []cli.Flag{rootsFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, internal.ErrFailureReport) {
			os.Exit(1)
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
