package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

type queryFlags struct {
	index              string
	eq, gt, ge, lt, le string
	reverse            bool
	limit, offset      int
	count, keys        bool
	remove             bool
}

func (a *app) queryCmd() *Command {
	flags := flag.NewFlagSet("query", flag.ContinueOnError)

	var q queryFlags

	flags.StringVarP(&q.index, "index", "i", "", "Query `index` instead of the primary key")
	flags.StringVar(&q.eq, "eq", "", "Match keys equal to `key`")
	flags.StringVar(&q.gt, "gt", "", "Match keys above `key`")
	flags.StringVar(&q.ge, "ge", "", "Match keys at or above `key`")
	flags.StringVar(&q.lt, "lt", "", "Match keys below `key`")
	flags.StringVar(&q.le, "le", "", "Match keys at or below `key`")
	flags.BoolVarP(&q.reverse, "reverse", "r", false, "Descending key order")
	flags.IntVarP(&q.limit, "limit", "n", 0, "Return at most `n` entries (0 = all)")
	flags.IntVar(&q.offset, "offset", 0, "Skip the first `n` entries")
	flags.BoolVar(&q.count, "count", false, "Print the number of matching entries")
	flags.BoolVar(&q.keys, "keys", false, "Print primary keys instead of items")
	flags.BoolVar(&q.remove, "delete", false, "Remove the matching items")

	return &Command{
		Flags: flags,
		Usage: "query <store> [flags]",
		Short: "Read items through an index",
		Long: `Read the items of a store in key order, optionally through a secondary
index and restricted to a key range.

Bound keys are parsed like "get" keys. --eq cannot be combined with the
other bounds.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 1, "<store>")
			if err != nil {
				return err
			}

			r, err := q.keyRange(flags)
			if err != nil {
				return err
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			store := args[0]

			switch {
			case q.remove:
				err = idxdb.RemoveRange(ctx, p, store, q.index, r)
				if err != nil {
					return err
				}

				o.Println("removed", r.String(), "from", store)

				return nil

			case q.count:
				n, err := idxdb.CountRange(ctx, p, store, q.index, r)
				if err != nil {
					return err
				}

				o.Println(n)

				return nil

			case q.keys:
				keys, err := idxdb.GetKeysForRange(ctx, p, store, q.index, r)
				if err != nil {
					return err
				}

				for _, k := range keys {
					err = o.PrintJSON(k)
					if err != nil {
						return err
					}
				}

				return nil
			}

			items, err := idxdb.GetRange(ctx, p, store, q.index, r, idxdb.QueryOptions{
				Reverse: q.reverse,
				Limit:   q.limit,
				Offset:  q.offset,
			})
			if err != nil {
				return err
			}

			for _, item := range items {
				err = o.PrintJSON(item)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}

// keyRange builds the range from the bound flags that were set.
func (q *queryFlags) keyRange(flags *flag.FlagSet) (idxdb.KeyRange, error) {
	set := func(name string) bool { return flags.Changed(name) }

	if set("eq") {
		if set("gt") || set("ge") || set("lt") || set("le") {
			return idxdb.KeyRange{}, fmt.Errorf("%w: --eq excludes other bounds", errUsage)
		}

		return idxdb.Only(parseKey(q.eq)), nil
	}

	if set("gt") && set("ge") {
		return idxdb.KeyRange{}, fmt.Errorf("%w: give --gt or --ge, not both", errUsage)
	}

	if set("lt") && set("le") {
		return idxdb.KeyRange{}, fmt.Errorf("%w: give --lt or --le, not both", errUsage)
	}

	var r idxdb.KeyRange

	switch {
	case set("gt"):
		r.Low, r.LowExclusive = parseKey(q.gt), true
	case set("ge"):
		r.Low = parseKey(q.ge)
	}

	switch {
	case set("lt"):
		r.High, r.HighExclusive = parseKey(q.lt), true
	case set("le"):
		r.High = parseKey(q.le)
	}

	return r, nil
}

func (a *app) searchCmd() *Command {
	flags := flag.NewFlagSet("search", flag.ContinueOnError)
	anyTerm := flags.Bool("or", false, "Match items containing any term (default: every term)")
	limit := flags.IntP("limit", "n", 0, "Return at most `n` items (0 = all)")

	return &Command{
		Flags: flags,
		Usage: "search <store> <index> <phrase>...",
		Short: "Full-text search",
		Long: `Tokenize the phrase and match it against a full-text index.

Each term matches index tokens starting with it, ignoring case and accents.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := minArgs(args, 3, "<store> <index> <phrase>...")
			if err != nil {
				return err
			}

			res := idxdb.ResolveAnd
			if *anyTerm {
				res = idxdb.ResolveOr
			}

			p, err := a.provider(ctx)
			if err != nil {
				return err
			}

			items, err := idxdb.FullTextSearch(ctx, p, args[0], args[1], strings.Join(args[2:], " "), res, *limit)
			if err != nil {
				return err
			}

			if len(items) == 0 {
				o.Warn("no matches", "try fewer terms or --or")
			}

			for _, item := range items {
				err = o.PrintJSON(item)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}
