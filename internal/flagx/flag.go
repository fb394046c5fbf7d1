// Package flagx lets several components parse their own flags from a shared
// os.Args without tripping over each other's unknown flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs narrows a command line down to the flags named in allowedFlags,
// keeping each flag's value next to it.
//
// Recognised forms:
//  1. Value in the next argument:  -d postgres://...
//  2. Value joined with '=':        -x=true
//
// An argument that starts with "-" is never taken as the previous flag's
// value, so boolean flags must use the '=' form.
//
// Parameters:
//
//	args         - raw command-line arguments, normally os.Args[1:]
//	allowedFlags - flag names this component owns, e.g. []string{"-a", "-l"}
//
// Returns:
//
//	A non-nil slice with the owned flags and their values, in input order.
func FilterArgs(args []string, allowedFlags []string) []string {
	// Set of owned flag names
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	// Empty rather than nil, callers hand it straight to FlagSet.Parse
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Form 2: "-flag=value", kept whole when the name is owned
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		// Form 1: "-flag value", the value is optional
		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++ // value consumed
			}
		}
	}

	return filtered
}

// JsonConfigFlags looks through os.Args for -c or -config and returns the
// configuration file path given there.
//
// Only those two flags are parsed, so the server's own flag set can run over
// the same arguments afterwards without seeing them as unknown.
//
// Returns:
//
//	The file path, or "" when neither flag is present.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
