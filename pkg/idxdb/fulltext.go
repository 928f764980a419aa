package idxdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/idxdb/pkg/idxdb/fulltext"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// ResolveFullText runs a full-text query against any backend's index.
//
// The phrase is tokenized like indexed text. Each term becomes a prefix scan
// [term, next(term)) over index, so "bro" matches "brown". Per-term matches
// are keyed by primary key and combined: [ResolveOr] takes the union in first
// match order, [ResolveAnd] the items present for every term. A positive limit
// truncates the result; 0 means no limit.
//
// A phrase without terms yields an empty result.
func ResolveFullText(
	ctx context.Context,
	index RangeReader,
	ix IndexSchema,
	primary KeyPath,
	phrase string,
	res Resolution,
	limit int,
) ([]Item, error) {
	if !ix.FullText {
		return nil, fmt.Errorf("%w: %q", ErrNotFullTextIndex, ix.Name)
	}

	if limit < 0 {
		return nil, fmt.Errorf("%w: limit %d is negative", ErrInvalidInput, limit)
	}

	if res != ResolveAnd && res != ResolveOr {
		return nil, fmt.Errorf("%w: unknown resolution %d", ErrInvalidInput, int(res))
	}

	terms := fulltext.Tokenize(phrase)
	if len(terms) == 0 {
		return []Item{}, nil
	}

	matches := make([]termMatch, 0, len(terms))

	for _, term := range terms {
		r := KeyRange{Low: term, High: fulltext.PrefixUpperBound(term), HighExclusive: true}

		items, err := index.GetRange(ctx, r, QueryOptions{})
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}

		m := termMatch{items: make(map[string]Item, len(items))}

		for _, item := range items {
			pk, err := keycodec.Encode(keycodec.Extract(item, primary), primary)
			if err != nil {
				return nil, fmt.Errorf("term %q: %w", term, err)
			}

			if _, dup := m.items[pk]; dup {
				continue
			}

			m.items[pk] = item
			m.order = append(m.order, pk)
		}

		matches = append(matches, m)
	}

	var out []Item

	switch res {
	case ResolveOr:
		seen := make(map[string]struct{})

		for _, m := range matches {
			for _, pk := range m.order {
				if _, dup := seen[pk]; dup {
					continue
				}

				seen[pk] = struct{}{}
				out = append(out, m.items[pk])
			}
		}
	case ResolveAnd:
		first := matches[0]

	next:
		for _, pk := range first.order {
			for _, m := range matches[1:] {
				if _, ok := m.items[pk]; !ok {
					continue next
				}
			}

			out = append(out, first.items[pk])
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	if out == nil {
		out = []Item{}
	}

	return out, nil
}

type termMatch struct {
	items map[string]Item
	order []string
}
