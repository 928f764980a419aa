package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/idxdb/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			io.Println(config.Format(*cfg))

			return nil
		},
	}
}
