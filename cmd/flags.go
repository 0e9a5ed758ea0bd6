package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	OutputFormat string
	Verbose      bool

	formats []string
}

// AddStandardFlags adds the named flag groups to a command. The "output"
// group accepts the listed formats, the first being the default.
func AddStandardFlags(cmd *cobra.Command, formats []string, groups ...string) *StandardFlags {
	flags := &StandardFlags{formats: formats}

	for _, group := range groups {
		switch group {
		case "output":
			def := ""
			if len(formats) > 0 {
				def = formats[0]
			}
			cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", def,
				fmt.Sprintf("Output format (%s)", strings.Join(formats, "|")))
			AddFlagValidation(cmd, "output", func(format string) error {
				return ValidateFormatWithSuggestion(format, formats)
			})
		case "verbose":
			cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
		}
	}

	return flags
}

// Format returns the normalized output format.
func (f *StandardFlags) Format() string {
	return strings.ToLower(f.OutputFormat)
}

// ValidateFlags validates flag combinations and values
func (f *StandardFlags) ValidateFlags() error {
	if len(f.formats) > 0 {
		if err := ValidateFormatWithSuggestion(f.OutputFormat, f.formats); err != nil {
			return err
		}
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFormatWithSuggestion checks format against valid and suggests the
// closest match on failure.
func ValidateFormatWithSuggestion(format string, valid []string) error {
	lower := strings.ToLower(format)
	for _, v := range valid {
		if lower == v {
			return nil
		}
	}

	msg := fmt.Sprintf("invalid format %q, must be one of: %s", format, strings.Join(valid, ", "))
	if s := closest(lower, valid); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	return fmt.Errorf("%s", msg)
}

// closest returns the candidate within edit distance 2 of s, if any.
func closest(s string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := levenshtein(s, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
