package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/haven/internal"
	pkgconfig "github.com/starford/haven/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if !cmd.Bool("quiet") {
		opts = append(opts, internal.WithTerminal(os.Stderr))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMockstore(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMockstore(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mockstore run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "haven",
		Usage:  "Bookstore cart sync: notifications, auth gate, cart mutations and badge reconciliation",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("HAVEN_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not mirror bridge notifications to the terminal",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the page bridge (HTTP + SSE)",
				Action: serve,
			},
			loginCommand(),
			logoutCommand(),
			registerCommand(),
			addCommand(),
			addExternalCommand(),
			badgeCommand(),
			mcpCommand(),
			{
				Name:   "mockstore",
				Usage:  "Run the development storefront",
				Action: runMockstore,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
