package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/folio/internal"
	pkgconfig "github.com/starford/folio/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("project"); p != "" {
		cfg.Project.Path = p
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// withSession opens the configured project for a one-shot command. Logs go to
// stderr so command output stays machine readable.
func withSession(cmd *cli.Command, fn func(*internal.Session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	session, err := internal.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readContent returns --content, or the --file contents ("-" reads stdin).
// ok is false when neither flag was given.
func readContent(cmd *cli.Command) (content string, ok bool, err error) {
	if cmd.IsSet("content") {
		return cmd.String("content"), true, nil
	}
	switch name := cmd.String("file"); name {
	case "":
		return "", false, nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", false, fmt.Errorf("read stdin: %w", err)
		}
		return string(data), true, nil
	default:
		data, err := os.ReadFile(name)
		if err != nil {
			return "", false, fmt.Errorf("read %s: %w", name, err)
		}
		return string(data), true, nil
	}
}

func requireArgs(cmd *cli.Command, n int, usage string) error {
	if cmd.NArg() < n {
		return fmt.Errorf("usage: folio %s %s", cmd.Name, usage)
	}
	return nil
}

var contentFlags = []cli.Flag{
	&cli.StringFlag{Name: "content", Usage: "Chapter body as Markdown"},
	&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the chapter body from a file (- for stdin)"},
}

func main() {
	cmd := &cli.Command{
		Name:   "folio",
		Usage:  "Manuscript projects with chapter files, search, live updates and export",
		Action: serve,
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
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project directory (overrides project.path)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live updates and the chapter watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
			newCommand(),
			infoCommand(),
			chapterCommand(),
			snapshotCommand(),
			exportCommand(),
			searchCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
