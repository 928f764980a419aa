package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one idxdb subcommand.
type Command struct {
	// Flags holds the command's own flags; nil means none.
	Flags *flag.FlagSet

	// Usage follows "idxdb" in help, starting with the command name,
	// e.g. "get <store> <key>...".
	Usage string

	// Short is the line shown in the command list.
	Short string

	// Long is the help text; Short is used when empty.
	Long string

	// Exec runs with the positional arguments left after flag parsing.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp writes the full help for "idxdb <cmd> --help" to w.
func (c *Command) PrintHelp(w io.Writer) {
	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	_, _ = fmt.Fprintf(w, "Usage: idxdb %s\n\n%s\n", c.Usage, desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		_, _ = fmt.Fprint(w, "\nFlags:\n")

		c.Flags.SetOutput(w)
		c.Flags.PrintDefaults()
	}
}

// Run parses args, runs Exec and returns the exit code. Errors go to
// stderr, followed by the help on a flag error.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o.out)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o.errOut)

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}

// exactArgs fails unless args has n entries.
func exactArgs(args []string, n int, what string) error {
	if len(args) != n {
		return fmt.Errorf("%w: want %s, got %d argument(s)", errUsage, what, len(args))
	}

	return nil
}

// minArgs fails unless args has at least n entries.
func minArgs(args []string, n int, what string) error {
	if len(args) < n {
		return fmt.Errorf("%w: want %s", errUsage, what)
	}

	return nil
}

var errUsage = errors.New("usage")
