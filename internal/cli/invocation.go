package cli

import (
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// InvocationConfig is the set of options parsed from one command line.
type InvocationConfig struct {
	Verbose    bool
	Input      string
	Output     string
	ConfigFile string
}

// bindInvocationFlags registers the invocation flags on fs, writing into inv.
// The root command and ParseInvocation both go through here.
func bindInvocationFlags(fs *pflag.FlagSet, inv *InvocationConfig) {
	fs.BoolVarP(&inv.Verbose, "verbose", "v", false, "Enable debug logging")
	fs.StringVarP(&inv.Input, "input", "i", "", "File to store in the vault (- for stdin)")
	fs.StringVarP(&inv.Output, "output", "o", "", "File to write the stored item to (- for stdout)")
	fs.StringVar(&inv.ConfigFile, "config", "", "Path to config file")
}

// valueFlags maps each invocation flag that takes a value, by the spelling
// used on the command line, to its long name.
var valueFlags = map[string]string{
	"--input":  "input",
	"-i":       "input",
	"--output": "output",
	"-o":       "output",
	"--config": "config",
}

// boolShorthands are the single-letter flags that never take a value.
const boolShorthands = "vh"

// normalizeArgs rewrites a value flag whose value is missing, or is itself a
// flag, to its empty form (--input=). The flag that follows is then parsed as
// a flag. A lone "-" is a value and is left alone.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}

		name, ok := valueFlags[arg]
		rest := ""
		if !ok {
			name, rest, ok = splitShortCluster(arg)
		}
		if !ok {
			out = append(out, arg)
			continue
		}

		if i+1 < len(args) && !looksLikeFlag(args[i+1]) {
			out = append(out, arg, args[i+1])
			i++
			continue
		}
		if rest != "" {
			out = append(out, rest)
		}
		out = append(out, "--"+name+"=")
	}
	return out
}

// splitShortCluster handles clusters like -vi, where the last letter is a
// value flag waiting for the next token. It returns the flag's long name and
// the cluster without that letter.
func splitShortCluster(arg string) (name, rest string, ok bool) {
	if len(arg) < 3 || arg[0] != '-' || arg[1] == '-' {
		return "", "", false
	}
	last := arg[len(arg)-1:]
	name, ok = valueFlags["-"+last]
	if !ok {
		return "", "", false
	}
	for _, r := range arg[1 : len(arg)-1] {
		if !strings.ContainsRune(boolShorthands, r) {
			return "", "", false
		}
	}
	return name, arg[:len(arg)-1], true
}

func looksLikeFlag(arg string) bool {
	return len(arg) > 1 && arg[0] == '-'
}

// ParseInvocation parses args, which must not include the program name.
// Unknown flags and positional arguments are ignored.
func ParseInvocation(args []string) (InvocationConfig, error) {
	var inv InvocationConfig

	fs := pflag.NewFlagSet("evolvedvault", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	bindInvocationFlags(fs, &inv)
	// Help belongs to the command tree; here it is just another ignored flag.
	fs.BoolP("help", "h", false, "")

	if err := fs.Parse(normalizeArgs(args)); err != nil {
		return InvocationConfig{}, &UsageError{Err: err}
	}
	return inv, nil
}
