package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

func (a *app) schemaCmd() *Command {
	flags := flag.NewFlagSet("schema", flag.ContinueOnError)
	asJSON := flags.Bool("json", false, "Print the schema as JSON")

	return &Command{
		Flags: flags,
		Usage: "schema [--json]",
		Short: "Show stores and indexes",
		Long:  "Validate the configured schema and list its stores and indexes.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0, "no arguments")
			if err != nil {
				return err
			}

			schema, err := idxdb.LoadSchema(a.cfg.SchemaAbs)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(schema)
			}

			o.Printf("version %d\n", schema.Version)

			for _, st := range schema.Stores {
				o.Printf("%s  key=%s\n", st.Name, st.PrimaryKeyPath)

				for _, ix := range st.Indexes {
					o.Printf("  %s  key=%s%s\n", ix.Name, ix.KeyPath, indexFlags(ix))
				}
			}

			return nil
		},
	}
}

func indexFlags(ix idxdb.IndexSchema) string {
	var b strings.Builder

	for _, f := range []struct {
		on   bool
		name string
	}{
		{ix.Unique, "unique"},
		{ix.MultiEntry, "multi-entry"},
		{ix.FullText, "full-text"},
	} {
		if f.on {
			b.WriteString(" " + f.name)
		}
	}

	return b.String()
}

func (a *app) putCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("put", flag.ContinueOnError),
		Usage: "put <store> [json...]",
		Short: "Insert or replace items",
		Long: `Insert or replace items by primary key in one transaction.

Each argument is a JSON object. Without arguments, a stream of JSON objects
is read from stdin.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := minArgs(args, 1, "<store>")
			if err != nil {
				return err
			}

			var items []idxdb.Item

			if len(args) > 1 {
				items, err = decodeItems(strings.NewReader(strings.Join(args[1:], "\n")))
			} else {
				items, err = decodeItems(a.stdin)
			}

			if err != nil {
				return err
			}

			if len(items) == 0 {
				return fmt.Errorf("%w: no items given", errUsage)
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			err = idxdb.Put(ctx, p, args[0], items...)
			if err != nil {
				return err
			}

			o.Printf("put %d item(s) into %s\n", len(items), args[0])

			return nil
		},
	}
}

// decodeItems reads a stream of JSON objects. A top-level array is
// flattened.
func decodeItems(r io.Reader) ([]idxdb.Item, error) {
	if r == nil {
		return nil, nil
	}

	dec := json.NewDecoder(bufio.NewReader(r))

	var items []idxdb.Item

	for {
		var v any

		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return items, nil
		}

		if err != nil {
			return nil, fmt.Errorf("decoding item %d: %w", len(items)+1, err)
		}

		switch v := v.(type) {
		case map[string]any:
			items = append(items, v)
		case []any:
			for _, e := range v {
				m, ok := e.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("decoding item %d: want object, got %T", len(items)+1, e)
				}

				items = append(items, m)
			}
		default:
			return nil, fmt.Errorf("decoding item %d: want object, got %T", len(items)+1, v)
		}
	}
}

// parseKey reads a key argument as JSON (numbers, arrays for compound keys,
// quoted strings) and falls back to the raw text.
func parseKey(s string) any {
	var v any

	err := json.Unmarshal([]byte(s), &v)
	if err != nil {
		return s
	}

	switch v.(type) {
	case float64, string, []any:
		return v
	default:
		return s
	}
}

func parseKeys(args []string) []any {
	keys := make([]any, len(args))
	for i, s := range args {
		keys[i] = parseKey(s)
	}

	return keys
}

func (a *app) getCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("get", flag.ContinueOnError),
		Usage: "get <store> <key>...",
		Short: "Print items by primary key",
		Long: `Print the items with the given primary keys, one JSON object per line.

Keys are parsed as JSON when possible: 42 is a number, [1,"a"] a compound
key. Anything else is a string.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := minArgs(args, 2, "<store> <key>...")
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			return idxdb.View(ctx, p, args[:1], func(tx idxdb.Transaction) error {
				s, err := tx.Store(args[0])
				if err != nil {
					return err
				}

				for _, raw := range args[1:] {
					item, err := s.Get(ctx, parseKey(raw))
					if err != nil {
						return err
					}

					if item == nil {
						o.Warn("not found: "+raw, "check the key and its type")

						continue
					}

					err = o.PrintJSON(item)
					if err != nil {
						return err
					}
				}

				return nil
			})
		},
	}
}

func (a *app) rmCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <store> <key>...",
		Short: "Remove items by primary key",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := minArgs(args, 2, "<store> <key>...")
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			err = idxdb.Remove(ctx, p, args[0], parseKeys(args[1:])...)
			if err != nil {
				return err
			}

			o.Printf("removed %d key(s) from %s\n", len(args)-1, args[0])

			return nil
		},
	}
}

func (a *app) clearCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("clear", flag.ContinueOnError),
		Usage: "clear <store>",
		Short: "Delete every item of a store",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 1, "<store>")
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			err = idxdb.ClearAllData(ctx, p, args[0])
			if err != nil {
				return err
			}

			o.Println("cleared", args[0])

			return nil
		},
	}
}
