// Package listing filters and sorts result sets that have already been
// fetched: a user's liked snippets, their collections, search hits.
// Nothing here touches storage.
package listing

import (
	"sort"
	"strings"

	"github.com/sakif/snippime/internal/model"
)

// Snippet sort keys.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortTitle    = "title"
	SortLanguage = "language"
	SortScore    = "score"
	SortHot      = "hot"
	SortViews    = "views"
)

// Collection sort keys (newest and oldest are shared).
const (
	SortName  = "name"
	SortItems = "items"
)

// All disables a language or visibility filter.
const All = "all"

// SnippetFilter narrows a snippet list. Zero values match everything.
type SnippetFilter struct {
	Query    string
	Language string
}

// CollectionFilter narrows a collection list. Zero values match everything.
type CollectionFilter struct {
	Query      string
	Visibility string
}

// FilterSnippets returns the snippets whose title, description or any tag
// contains the query (case-insensitive) and whose language matches.
// The input slice is not modified.
func FilterSnippets(in []model.Snippet, f SnippetFilter) []model.Snippet {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	lang := strings.ToLower(strings.TrimSpace(f.Language))

	out := make([]model.Snippet, 0, len(in))
	for _, s := range in {
		if q != "" && !snippetMatches(&s, q) {
			continue
		}
		if lang != "" && lang != All && strings.ToLower(s.Language) != lang {
			continue
		}
		out = append(out, s)
	}
	return out
}

func snippetMatches(s *model.Snippet, q string) bool {
	if strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	for _, t := range s.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// SortSnippets sorts in place by key. Unknown keys leave the order alone.
// The sort is stable so equal elements keep their fetched order.
func SortSnippets(list []model.Snippet, key string) {
	var less func(a, b *model.Snippet) bool

	switch key {
	case SortNewest:
		less = func(a, b *model.Snippet) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortOldest:
		less = func(a, b *model.Snippet) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortTitle:
		less = func(a, b *model.Snippet) bool { return foldLess(a.Title, b.Title) }
	case SortLanguage:
		less = func(a, b *model.Snippet) bool { return foldLess(a.Language, b.Language) }
	case SortScore:
		less = func(a, b *model.Snippet) bool { return a.Score > b.Score }
	case SortHot:
		less = func(a, b *model.Snippet) bool { return a.ScoreHot > b.ScoreHot }
	case SortViews:
		less = func(a, b *model.Snippet) bool { return a.ViewsCount > b.ViewsCount }
	default:
		return
	}

	sort.SliceStable(list, func(i, j int) bool { return less(&list[i], &list[j]) })
}

// FilterCollections returns the collections whose title or description
// contains the query and whose visibility matches.
func FilterCollections(in []model.Collection, f CollectionFilter) []model.Collection {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	vis := strings.ToLower(strings.TrimSpace(f.Visibility))

	out := make([]model.Collection, 0, len(in))
	for _, c := range in {
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Title), q) &&
			!strings.Contains(strings.ToLower(c.Description), q) {
			continue
		}
		if vis != "" && vis != All && string(c.Visibility) != vis {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortCollections sorts in place by key. Unknown keys leave the order alone.
func SortCollections(list []model.Collection, key string) {
	var less func(a, b *model.Collection) bool

	switch key {
	case SortNewest:
		less = func(a, b *model.Collection) bool { return a.CreatedAt.After(b.CreatedAt) }
	case SortOldest:
		less = func(a, b *model.Collection) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortName:
		less = func(a, b *model.Collection) bool { return foldLess(a.Title, b.Title) }
	case SortItems:
		less = func(a, b *model.Collection) bool { return a.ItemCount > b.ItemCount }
	default:
		return
	}

	sort.SliceStable(list, func(i, j int) bool { return less(&list[i], &list[j]) })
}

// foldLess compares case-insensitively. Strings that differ only in case
// compare equal and keep their order under a stable sort.
func foldLess(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}
