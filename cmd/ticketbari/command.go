package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

// Command is one node of the CLI tree. Commands with Subcommands dispatch on
// the first positional argument; leaves parse their flags and call Run.
type Command struct {
	Name        string
	Summary     string
	Usage       string
	Flags       func() *pflag.FlagSet
	Subcommands []*Command
	Run         func(args []string) error

	parent *Command
}

func (c *Command) Execute(out io.Writer, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(out)
		return nil
	}

	if len(c.Subcommands) > 0 {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			c.PrintHelp(out)
			return fmt.Errorf("%w: command required", errUsage)
		}
		for _, sub := range c.Subcommands {
			if sub.Name == args[0] {
				sub.parent = c
				return sub.Execute(out, args[1:])
			}
		}
		return fmt.Errorf("%w: unknown command %q, run '%s --help'", errUsage, args[0], c.fullName())
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			return fmt.Errorf("%w: %v, run '%s --help'", errUsage, err, c.fullName())
		}
		args = flagSet.Args()
	}
	return c.Run(args)
}

func (c *Command) PrintHelp(w io.Writer) {
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}
	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s %s\n", c.fullName(), c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", c.fullName())
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.fullName())
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		var help strings.Builder
		flagSet := c.Flags()
		flagSet.SetOutput(&help)
		flagSet.PrintDefaults()
		if help.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", help.String())
		}
	}
}

func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
