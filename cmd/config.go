package cmd

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/volki/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect volki configuration",
		Long: `Inspect the configuration resolved from the config file, VOLKI_
environment variables and defaults.

Examples:
  volki config show                  # Print the effective configuration
  volki config show -o json          # ... as JSON
  volki config validate              # Validate .volki.yml
  volki config validate --strict     # Treat warnings as errors`,
	}

	cmd.AddCommand(newConfigShowCommand(), newConfigValidateCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var flags *StandardFlags

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}
			cfg, err := loadConfig(cmd, nil, nil)
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), cfg, flags.Format())
		},
	}

	flags = AddStandardFlags(cmd, []string{"yaml", "json"}, "output")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the configuration, reporting every error and warning with
suggestions. Exits non-zero on errors, or on warnings with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, map[string]string{})
			if err != nil {
				return err
			}
			cfg, err := config.Decode(v)
			if err != nil {
				return fmt.Errorf("failed to parse configuration: %w", err)
			}
			return reportValidation(cmd.OutOrStdout(), config.ValidateConfigWithDetails(cfg), strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	return cmd
}

func reportValidation(w io.Writer, result *config.ValidationResult, strict bool) error {
	if result.Valid && !result.HasWarnings() {
		fmt.Fprintln(w, "Configuration is valid.")
		return nil
	}

	fmt.Fprint(w, result.String())

	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}

	if strict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
	}

	fmt.Fprintf(w, "Configuration is valid with %d warnings. Use --strict to treat warnings as errors.\n", len(result.Warnings))
	return nil
}

// writeStructured encodes v as yaml or json.
func writeStructured(w io.Writer, v any, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
