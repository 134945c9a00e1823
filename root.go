package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pitwall-dev/apexdata/internal/config"
	"github.com/pitwall-dev/apexdata/internal/dataapi"
	"github.com/pitwall-dev/apexdata/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagIdentity   string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. Available to all subcommands after the root pre-run
// phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apexdata",
		Short:   "CLI client for the apex data API",
		Long:    "Authenticated access to the apex data API: raw endpoint queries and bulk dataset exports.",
		Version: version,
		// Silence Cobra's default error/usage printing, we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagIdentity, "identity", "", "account identity (email), overrides config")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in compact JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// (defaults -> file -> env -> flags) and stores it for subcommands.
// A local .env file is loaded first so development secrets work without
// polluting the shell; a missing .env is not an error.
func loadConfig() error {
	_ = godotenv.Load()

	resolved, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath: flagConfigPath,
		Identity:   flagIdentity,
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Human-readable text on a terminal, JSON when piped.
func buildLogger() *slog.Logger {
	level := logLevelFor(resolvedCfg.LogLevel, flagVerbose, flagQuiet)

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// logLevelFor maps the config log level and CLI flags to an slog level.
// Config provides the baseline; --verbose and --quiet win because CLI
// flags always override.
func logLevelFor(cfgLevel string, verbose, quiet bool) slog.Level {
	level := slog.LevelInfo

	switch cfgLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if verbose {
		level = slog.LevelDebug
	}

	if quiet {
		level = slog.LevelError
	}

	return level
}

// newAPIClient builds a data API client from the resolved config, seeding
// it with a previously saved token pair when one exists for the
// configured account.
func newAPIClient(logger *slog.Logger) *dataapi.Client {
	creds := dataapi.Credentials{
		Identity:     resolvedCfg.Identity,
		Secret:       resolvedCfg.Password,
		ClientID:     resolvedCfg.ClientID,
		ClientSecret: resolvedCfg.ClientSecret,
	}

	client := dataapi.NewClient(resolvedCfg.BaseURL, resolvedCfg.TokenURL, creds, dataapi.DefaultHTTPClient(), logger)

	tok, account, err := tokenfile.Load(resolvedCfg.TokenPath)
	if err != nil {
		logger.Warn("ignoring unreadable token file",
			slog.String("path", resolvedCfg.TokenPath),
			slog.String("error", err.Error()),
		)

		return client
	}

	if tok != nil && account == resolvedCfg.Identity {
		client.SetToken(tok)
	}

	return client
}

// persistToken saves the client's current token pair so the next run can
// skip the handshake. Best-effort: a failed save is only a warning.
func persistToken(client *dataapi.Client, logger *slog.Logger) {
	tok := client.Token()
	if tok == nil {
		return
	}

	if err := tokenfile.Save(resolvedCfg.TokenPath, tok, resolvedCfg.Identity); err != nil {
		logger.Warn("failed to persist token",
			slog.String("path", resolvedCfg.TokenPath),
			slog.String("error", err.Error()),
		)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
