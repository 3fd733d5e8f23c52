// Package flagx pre-scans command-line arguments for flags that must be known
// before the full command line is parsed, such as the config file path.
package flagx

import (
	"strings"

	"github.com/spf13/pflag"
)

// FilterArgs returns the allowed flags from args together with their values.
//
// Accepted forms are "-c file", "--config file" and "--config=file". A value
// is only taken from the next argument if it does not itself start with '-'.
// Scanning stops at the "--" terminator.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]bool, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = true
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if allowed[name] {
				filtered = append(filtered, arg)
			}
			continue
		}

		if !allowed[arg] {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// ConfigPath returns the value of -c/--config in args, or "" if absent.
// When the flag is repeated the last value wins.
func ConfigPath(args []string) string {
	var path string

	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.StringVarP(&path, "config", "c", "", "path to config file")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "--config"}))

	return path
}
