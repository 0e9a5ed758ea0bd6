package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/volki/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		flags *StandardFlags
		short bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the version, git commit, build time, Go version and platform.

Examples:
  volki version            # Version and build details
  volki version --short    # Version only
  volki version -o json    # Machine-readable output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.ValidateFlags(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			out := cmd.OutOrStdout()
			info := version.GetBuildInfo()

			switch flags.Format() {
			case "json", "yaml":
				return writeStructured(out, info, flags.Format())
			}

			if short {
				fmt.Fprintln(out, version.GetShortVersion())
				return nil
			}

			fmt.Fprintf(out, "volki %s", info.Version)
			if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
				fmt.Fprintf(out, " (%s)", info.GitCommit[:7])
			}
			if info.Dirty {
				fmt.Fprint(out, " (dirty)")
			}
			fmt.Fprintln(out)

			if !info.BuildTime.IsZero() {
				fmt.Fprintf(out, "Built: %s\n", info.BuildTime.UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return nil
		},
	}

	flags = AddStandardFlags(cmd, []string{"text", "json", "yaml"}, "output")
	cmd.Flags().BoolVar(&short, "short", false, "Show version only")
	return cmd
}
