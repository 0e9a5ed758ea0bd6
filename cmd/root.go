package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/volki/internal/config"
)

// NewRootCommand builds the volki command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "volki",
		Short: "A file-system routed HTTP/1.1 server",
		Long: `volki serves a directory whose layout is its route table.

Files under pages/ become HTML pages and files under api/ become API
endpoints mounted at /api. Bracketed names capture path segments:

  pages/index.volki           GET /
  pages/users/[id].volki      GET /users/{id}
  pages/docs/[...path].volki  GET /docs/{path...}
  api/items/[id].volki        /api/items/{id}

Files under public/ are served as static assets when no route matches.

Quick Start:
  volki routes            Print the discovered route table
  volki serve             Serve the current directory
  volki config show       Print the effective configuration`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file (default is .volki.yml, can also use VOLKI_CONFIG_FILE env var)")
	root.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")

	root.AddCommand(
		newServeCommand(),
		newRoutesCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// newViper resolves the config file and environment for one invocation and
// binds the given flags, keyed by flag name, to config keys.
func newViper(cmd *cobra.Command, bindings map[string]string) (*viper.Viper, error) {
	v := viper.New()

	cfgFile, _ := cmd.Flags().GetString("config")
	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv("VOLKI_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv("VOLKI_CONFIG_FILE"))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(config.FileName)
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", v.ConfigFileUsed())
	}

	bindings["log-level"] = "logging.level"
	bindings["log-format"] = "logging.format"
	for flagName, key := range bindings {
		if flag := cmd.Flags().Lookup(flagName); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	return v, nil
}

// loadConfig loads and validates the configuration for cmd. A positional
// root argument overrides server.root.
func loadConfig(cmd *cobra.Command, bindings map[string]string, args []string) (*config.Config, error) {
	if bindings == nil {
		bindings = map[string]string{}
	}
	v, err := newViper(cmd, bindings)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		v.Set("server.root", args[0])
	}

	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
