// Package flags provides reusable flag helpers for CLI commands.
//
// This package should only contain common flags that can be used by multiple commands
// to ensure unified naming and consistent behavior across the CLI.
// Command-specific flags should be defined locally in the command file.
package flags

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// MustString returns the string value, ignoring the error.
// Safe to use with registered flags where GetString cannot fail.
func MustString(s string, _ error) string { return s }

// MustBool returns the bool value, ignoring the error.
// Safe to use with registered flags where GetBool cannot fail.
func MustBool(b bool, _ error) bool { return b }

// MustStringSlice returns the string slice value, ignoring the error.
// Safe to use with registered flags where GetStringSlice cannot fail.
func MustStringSlice(s []string, _ error) []string { return s }

// Output adds the --out/-o flag for specifying output file path. An empty path prints to
// stdout. Also supports the deprecated --outputPath alias.
// Retrieve the value with cmd.Flags().GetString("out").
func Output(cmd *cobra.Command, defaultValue string) {
	cmd.Flags().StringP("out", "o", defaultValue, "Output file path")

	existingNormalize := cmd.Flags().GetNormalizeFunc()
	cmd.Flags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "outputPath" {
			return pflag.NormalizedName("out")
		}
		if existingNormalize != nil {
			return existingNormalize(f, name)
		}

		return pflag.NormalizedName(name)
	})
}

// Format adds the --format flag selecting between table and json output (default: table).
// Retrieve the value with cmd.Flags().GetString("format").
func Format(cmd *cobra.Command) {
	cmd.Flags().String("format", "table", "Output format: table or json")
}

// Selectors adds a repeatable chain selector flag.
// Retrieve the values with ParseSelectors(cmd.Flags().GetStringSlice(name)).
func Selectors(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringSlice(name, nil, usage)
}

// ParseSelectors converts chain selector flag values. Selectors exceed int64, so they are taken
// as strings.
func ParseSelectors(values []string, err error) ([]uint64, error) {
	if err != nil {
		return nil, err
	}

	selectors := make([]uint64, 0, len(values))
	for _, v := range values {
		s, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("invalid chain selector %q: %w", v, perr)
		}
		selectors = append(selectors, s)
	}

	return selectors, nil
}
