package flags

import (
	"strings"

	"github.com/urfave/cli/v2"
)

// ReorderArgs moves positional arguments behind the flags so that inputs may
// be given before options, as in "op-testhost pkg.test -nologo". args[0] is
// the program name. Everything after "--" is kept positional.
func ReorderArgs(args []string, fs []cli.Flag) []string {
	if len(args) == 0 {
		return args
	}
	takesValue := make(map[string]bool)
	for _, f := range fs {
		v := false
		if df, ok := f.(cli.DocGenerationFlag); ok {
			v = df.TakesValue()
		}
		for _, name := range f.Names() {
			takesValue[name] = v
		}
	}

	out := []string{args[0]}
	var positional []string
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			positional = append(positional, rest[i+1:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			positional = append(positional, arg)
			continue
		}
		out = append(out, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if takesValue[name] && i+1 < len(rest) {
			i++
			out = append(out, rest[i])
		}
	}
	if len(positional) == 0 {
		return out
	}
	out = append(out, "--")
	return append(out, positional...)
}
