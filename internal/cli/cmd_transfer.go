package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

func (a *app) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.EffectiveCwd, path)
}

func (a *app) exportCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("export", flag.ContinueOnError),
		Usage: "export <store> <file>",
		Short: "Write all items of a store to a JSON file",
		Long: `Write every item of a store, in primary key order, to a JSON array file.

The file is replaced atomically.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 2, "<store> <file>")
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			items, err := idxdb.GetAll(ctx, p, args[0], "", idxdb.QueryOptions{})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding items: %w", err)
			}

			data = append(data, '\n')

			err = atomic.WriteFile(a.abs(args[1]), bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("writing %s: %w", args[1], err)
			}

			o.Printf("exported %d item(s) from %s\n", len(items), args[0])

			return nil
		},
	}
}

func (a *app) importCmd() *Command {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	replace := flags.Bool("replace", false, "Clear the store before importing")

	return &Command{
		Flags: flags,
		Usage: "import <store> <file> [--replace]",
		Short: "Load items from a JSON file",
		Long: `Put every item of a JSON file (an array or a stream of objects) into a
store in one transaction.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 2, "<store> <file>")
			if err != nil {
				return err
			}

			f, err := os.Open(a.abs(args[1]))
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}

			defer func() { _ = f.Close() }()

			items, err := decodeItems(f)
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			err = idxdb.Update(ctx, p, args[:1], func(tx idxdb.Transaction) error {
				s, err := tx.Store(args[0])
				if err != nil {
					return err
				}

				if *replace {
					err = s.ClearAllData(ctx)
					if err != nil {
						return err
					}
				}

				if len(items) == 0 {
					return nil
				}

				return s.Put(ctx, items...)
			})
			if err != nil {
				return err
			}

			o.Printf("imported %d item(s) into %s\n", len(items), args[0])

			return nil
		},
	}
}
