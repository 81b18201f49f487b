// Package completion implements the query sources and ranking strategies
// behind tab-completion and the completion popup: emotes, chatters, and
// commands, each filtered/ordered by a pluggable Strategy and composed
// into a Unified source when the query prefix is ambiguous. Grounded on
// spec.md §4.7; the Strategy/Source interface split mirrors the teacher's
// internal/domain/filters pluggable-match-pipeline shape (a Result-style
// value threaded through an ordered pipeline of checks), and the
// built-in-command registry shape is grounded on the teacher's
// internal/adapters/cli command-dispatch table.
package completion

import "strings"

// Item is one completion candidate: a display form, a search form used
// for matching, and a caller-supplied insertion form.
type Item struct {
	DisplayName string
	SearchName  string
	InsertText  string
}

// Strategy ranks and filters a candidate pool against a query.
type Strategy interface {
	Apply(items []Item, query string) []Item
}

// ClassicEmoteStrategy filters by case-insensitive substring match of the
// query (with one leading ':' stripped) against each item's search name,
// then promotes an exact match (search name equal to the query, or equal
// to ":"+query) to index 0.
type ClassicEmoteStrategy struct{}

func (ClassicEmoteStrategy) Apply(items []Item, query string) []Item {
	q := strings.ToLower(strings.TrimPrefix(query, ":"))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.SearchName), q) {
			out = append(out, it)
		}
	}
	for i, it := range out {
		ln := strings.ToLower(it.SearchName)
		if ln == q || ln == ":"+q {
			if i != 0 {
				out[0], out[i] = out[i], out[0]
			}
			break
		}
	}
	return out
}

// PrefixOnlyEmoteStrategy includes items whose search name starts with
// the query (with an optional leading ':' stripped), emitted in
// case-insensitive sorted order.
type PrefixOnlyEmoteStrategy struct{}

func (PrefixOnlyEmoteStrategy) Apply(items []Item, query string) []Item {
	q := strings.ToLower(strings.TrimPrefix(query, ":"))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.SearchName), q) {
			out = append(out, it)
		}
	}
	sortByCaseInsensitiveSearchName(out)
	return out
}

func sortByCaseInsensitiveSearchName(items []Item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && strings.ToLower(items[j].SearchName) < strings.ToLower(items[j-1].SearchName); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// ClassicUserStrategy strips an optional leading '@', lowercases, and
// returns items whose name starts with the query, preserving the input's
// set order (ChatterIndex already hands back a sorted pool).
type ClassicUserStrategy struct{}

func (ClassicUserStrategy) Apply(items []Item, query string) []Item {
	q := strings.ToLower(strings.TrimPrefix(query, "@"))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.SearchName), q) {
			out = append(out, it)
		}
	}
	return out
}

// CommandStrategy strips an optional leading '/' or '.' and matches by
// either prefix or substring depending on UseContains.
type CommandStrategy struct {
	UseContains bool
}

func (s CommandStrategy) Apply(items []Item, query string) []Item {
	q := strings.ToLower(query)
	q = strings.TrimPrefix(q, "/")
	q = strings.TrimPrefix(q, ".")

	out := make([]Item, 0, len(items))
	for _, it := range items {
		name := strings.ToLower(it.SearchName)
		matched := strings.HasPrefix(name, q)
		if s.UseContains {
			matched = strings.Contains(name, q)
		}
		if matched {
			out = append(out, it)
		}
	}
	return out
}
