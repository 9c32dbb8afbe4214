package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tinywideclouds/go-notifylight/notifylight/config"
)

// globalFlags are shared by every subcommand. Set flags take precedence over
// the environment, which takes precedence over the config file.
type globalFlags struct {
	configPath string
	serverURL  string
	apiKey     string
	userID     string
	debug      bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "notifylight",
		Short: "Terminal client for a NotifyLight server",
		Long: `notifylight fetches in-app messages for a user from a NotifyLight server
and shows them in the terminal, one at a time.

Configuration comes from a YAML file (--config), NOTIFYLIGHT_* environment
variables (a .env file in the working directory is loaded first) and flags.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&flags.serverURL, "server", "", "server URL (NOTIFYLIGHT_SERVER_URL)")
	pf.StringVar(&flags.apiKey, "api-key", "", "API key (NOTIFYLIGHT_API_KEY)")
	pf.StringVar(&flags.userID, "user", "", "user id (NOTIFYLIGHT_USER_ID)")
	pf.BoolVarP(&flags.debug, "debug", "v", false, "enable debug logging (NOTIFYLIGHT_DEBUG)")

	root.AddCommand(
		HealthCmd(flags),
		MessagesCmd(flags),
		RegisterCmd(flags),
		WatchCmd(flags),
	)
	return root
}

// loadConfig resolves the configuration: YAML file, then environment, then
// flags.
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	bootLogger := newLogger(f.debug)

	base := &config.Config{}
	if f.configPath != "" {
		yamlCfg, err := config.ReadYamlFile(f.configPath)
		if err != nil {
			return nil, nil, err
		}
		if base, err = config.NewConfigFromYaml(yamlCfg, bootLogger); err != nil {
			return nil, nil, err
		}
	}

	// Flags are fed through the environment so they win over it.
	overrides := map[string]string{
		"server":  "NOTIFYLIGHT_SERVER_URL",
		"api-key": "NOTIFYLIGHT_API_KEY",
		"user":    "NOTIFYLIGHT_USER_ID",
		"debug":   "NOTIFYLIGHT_DEBUG",
	}
	for name, env := range overrides {
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			if err := os.Setenv(env, fl.Value.String()); err != nil {
				return nil, nil, err
			}
		}
	}

	cfg, err := config.UpdateConfigWithEnvOverrides(base, bootLogger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.Debug), nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("service", "notifylight-cli")
}
