// Package search keeps a full-text index of public snippets on top of bleve.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

// Index wraps a bleve index of public snippets.
type Index struct {
	index bleve.Index
}

// document is what gets indexed for a snippet.
type document struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Tags        []string `json:"tags"`
	Language    string   `json:"language"`
	Author      string   `json:"author"`
}

// Hit is one search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Open opens or creates the index at path. An empty path gives an in-memory
// index that has to be filled with Rebuild after every start.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("search: create memory index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("search: create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("search: open index: %w", err)
	}

	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	english := bleve.NewTextFieldMapping()
	english.Analyzer = en.AnalyzerName

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", english)
	doc.AddFieldMappingsAt("description", english)
	doc.AddFieldMappingsAt("code", text)
	doc.AddFieldMappingsAt("tags", exact)
	doc.AddFieldMappingsAt("language", exact)
	doc.AddFieldMappingsAt("author", text)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

func (i *Index) Close() error {
	return i.index.Close()
}

// Put indexes a public snippet and removes any other from the index.
func (i *Index) Put(sn *model.Snippet) error {
	if !sn.IsPublic() {
		return i.Delete(sn.ID)
	}
	if err := i.index.Index(sn.ID, toDocument(sn)); err != nil {
		return fmt.Errorf("search: index %s: %w", sn.ID, err)
	}
	return nil
}

func (i *Index) Delete(id string) error {
	if err := i.index.Delete(id); err != nil {
		return fmt.Errorf("search: delete %s: %w", id, err)
	}
	return nil
}

func toDocument(sn *model.Snippet) document {
	return document{
		Title:       sn.Title,
		Description: sn.Description,
		Code:        sn.Code,
		Tags:        sn.Tags,
		Language:    sn.Language,
		Author:      sn.AuthorName,
	}
}

// Search returns the IDs of matching snippets, best match first. Every word
// of q is matched against the title (boosted), description, code, author,
// tags and language. Stopwords are ignored; blank queries match nothing.
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(q)) {
		if i.meaningful(term) {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 || limit > repository.MaxLimit {
		limit = repository.DefaultLimit
	}

	perTerm := make([]query.Query, 0, len(terms))
	for _, term := range terms {
		perTerm = append(perTerm, termQuery(term))
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(perTerm...), limit, 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// meaningful reports whether term survives a text analyzer. Stopwords like
// "in" or "the" produce no tokens and would make the conjunction
// unsatisfiable.
func (i *Index) meaningful(term string) bool {
	m := i.index.Mapping()
	for _, name := range []string{en.AnalyzerName, standard.Name} {
		if a := m.AnalyzerNamed(name); a != nil && len(a.Analyze([]byte(term))) > 0 {
			return true
		}
	}
	return false
}

// termQuery matches one word in any indexed field.
func termQuery(term string) query.Query {
	title := bleve.NewMatchQuery(term)
	title.SetField("title")
	title.SetBoost(3)

	titlePrefix := bleve.NewPrefixQuery(term)
	titlePrefix.SetField("title")

	desc := bleve.NewMatchQuery(term)
	desc.SetField("description")

	code := bleve.NewMatchQuery(term)
	code.SetField("code")

	author := bleve.NewMatchQuery(term)
	author.SetField("author")

	tag := bleve.NewTermQuery(term)
	tag.SetField("tags")
	tag.SetBoost(2)

	lang := bleve.NewTermQuery(term)
	lang.SetField("language")

	return bleve.NewDisjunctionQuery(title, titlePrefix, desc, code, author, tag, lang)
}

// Count returns the number of indexed snippets.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// SnippetLister pages through stored snippets.
type SnippetLister interface {
	List(ctx context.Context, q repository.SnippetQuery) ([]model.Snippet, error)
}

// Rebuild indexes every public snippet from storage in batches and returns
// how many were indexed.
func (i *Index) Rebuild(ctx context.Context, src SnippetLister) (int, error) {
	total := 0
	for offset := 0; ; offset += repository.MaxLimit {
		page, err := src.List(ctx, repository.SnippetQuery{
			Status: model.StatusPublic,
			Sort:   repository.SortRecent,
			Limit:  repository.MaxLimit,
			Offset: offset,
		})
		if err != nil {
			return total, fmt.Errorf("search: list snippets: %w", err)
		}
		if len(page) == 0 {
			return total, nil
		}

		batch := i.index.NewBatch()
		for idx := range page {
			if err := batch.Index(page[idx].ID, toDocument(&page[idx])); err != nil {
				return total, fmt.Errorf("search: batch index %s: %w", page[idx].ID, err)
			}
		}
		if err := i.index.Batch(batch); err != nil {
			return total, fmt.Errorf("search: commit batch: %w", err)
		}
		total += len(page)

		if len(page) < repository.MaxLimit {
			return total, nil
		}
	}
}
