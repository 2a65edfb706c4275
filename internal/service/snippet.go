package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/languages"
	"github.com/sakif/snippime/internal/listing"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
	"github.com/sakif/snippime/internal/tags"
)

// Validation limits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
	MaxCodeLength        = 100000
	MaxSummaryLength     = 200
)

// SnippetInput is the editable part of a snippet.
type SnippetInput struct {
	Title       string
	Description string
	Code        string
	Language    string
	Tags        []string
	Status      model.SnippetStatus
	// Summary describes a code change in the version history.
	Summary string
}

// DiscoverQuery selects public snippets for the discover page.
type DiscoverQuery struct {
	Query    string
	Language string
	Tag      string
	Sort     repository.SnippetSort
	Limit    int
	Offset   int
}

// SnippetService implements snippet creation, reading, editing, forking and
// version history.
type SnippetService struct {
	snippets repository.SnippetRepository
	versions repository.VersionRepository
	users    repository.UserRepository
	index    SearchIndex
	events   Publisher
	logger   *slog.Logger
}

// NewSnippetService wires a SnippetService. events may be nil.
func NewSnippetService(
	snippets repository.SnippetRepository,
	versions repository.VersionRepository,
	users repository.UserRepository,
	index SearchIndex,
	events Publisher,
	logger *slog.Logger,
) *SnippetService {
	if events == nil {
		events = nopPublisher{}
	}
	return &SnippetService{
		snippets: snippets,
		versions: versions,
		users:    users,
		index:    index,
		events:   events,
		logger:   logger,
	}
}

// validate normalises in and checks it against the snippet rules.
func (in *SnippetInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Language = languages.Normalize(in.Language)

	if in.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if strings.TrimSpace(in.Code) == "" {
		return apperror.ValidationFailed("code", "code is required")
	}
	if len(in.Code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if in.Language == "" {
		in.Language = languages.Default
	}
	if !languages.Valid(in.Language) {
		return apperror.ValidationFailed("language", fmt.Sprintf("unsupported language %q", in.Language))
	}
	if in.Status == "" {
		in.Status = model.StatusDraft
	}
	if !in.Status.Valid() {
		return apperror.ValidationFailed("status", "status must be draft, public or private")
	}
	if utf8.RuneCountInString(in.Summary) > MaxSummaryLength {
		return apperror.ValidationFailed("summary",
			fmt.Sprintf("summary must be %d characters or less", MaxSummaryLength))
	}
	in.Tags = tags.Normalize(in.Tags)
	return nil
}

func requireUser(userID string) error {
	if userID == "" {
		return apperror.Unauthorized("sign in required")
	}
	return nil
}

// Create stores a new snippet owned by userID, together with its initial
// version. Status defaults to draft.
func (s *SnippetService) Create(ctx context.Context, userID string, in SnippetInput) (*model.Snippet, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading author: %w", err)
	}

	sn := &model.Snippet{
		Title:       in.Title,
		Description: in.Description,
		Code:        in.Code,
		Language:    in.Language,
		Tags:        in.Tags,
		Status:      in.Status,
		OwnerID:     owner.ID,
		AuthorName:  owner.Name(),
		AuthorPhoto: owner.PhotoURL,
	}

	if err := s.snippets.Create(ctx, sn); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("owner", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", sn.ID),
		slog.String("owner", sn.OwnerID),
		slog.String("status", string(sn.Status)),
	)

	s.reindex(sn)
	publishSnippet(s.events, model.EventSnippetCreated, sn, false)
	return sn, nil
}

// getVisible loads a snippet and hides it from callers who may not see it.
func (s *SnippetService) getVisible(ctx context.Context, viewerID, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	sn, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sn.VisibleTo(viewerID) {
		return nil, apperror.NotFound("snippet", id)
	}
	return sn, nil
}

// getOwned loads a snippet that userID must own.
func (s *SnippetService) getOwned(ctx context.Context, userID, id string) (*model.Snippet, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	sn, err := s.getVisible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sn.OwnerID != userID {
		return nil, apperror.Forbidden("you do not own this snippet")
	}
	return sn, nil
}

// Get returns a snippet the viewer may see. Drafts and private snippets are
// reported as not found to everyone but their owner. A read by anyone other
// than the owner counts as a view.
func (s *SnippetService) Get(ctx context.Context, viewerID, id string) (*model.Snippet, error) {
	sn, err := s.getVisible(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	if viewerID != sn.OwnerID {
		if err := s.snippets.IncrementViews(ctx, sn.ID); err != nil {
			s.logger.Warn("failed to count view",
				slog.String("id", sn.ID),
				slog.String("error", err.Error()),
			)
		} else {
			sn.ViewsCount++
		}
	}
	return sn, nil
}

// GetPublic returns a snippet only when it is public. Embeds use it.
func (s *SnippetService) GetPublic(ctx context.Context, id string) (*model.Snippet, error) {
	return s.getVisible(ctx, "", id)
}

// Discover lists public snippets. With a text query the search index picks
// and orders the candidates; otherwise storage does.
func (s *SnippetService) Discover(ctx context.Context, q DiscoverQuery) ([]model.Snippet, error) {
	if !q.Sort.Valid() {
		return nil, apperror.ValidationFailed("sort", fmt.Sprintf("unknown sort %q", q.Sort))
	}
	lang := languages.Normalize(q.Language)
	if lang == listing.All {
		lang = ""
	}
	tag := strings.ToLower(strings.TrimSpace(q.Tag))

	rq := repository.SnippetQuery{
		Status:   model.StatusPublic,
		Language: lang,
		Tag:      tag,
		Sort:     q.Sort,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}.Normalize()

	if strings.TrimSpace(q.Query) == "" {
		list, err := s.snippets.List(ctx, rq)
		if err != nil {
			return nil, fmt.Errorf("listing snippets: %w", err)
		}
		return list, nil
	}

	found, err := s.searchPublic(ctx, q.Query, repository.MaxLimit)
	if err != nil {
		return nil, err
	}

	out := make([]model.Snippet, 0, len(found))
	for _, sn := range found {
		if lang != "" && sn.Language != lang {
			continue
		}
		if tag != "" && !slices.Contains(sn.Tags, tag) {
			continue
		}
		out = append(out, sn)
	}

	// Without an explicit sort the relevance order stands.
	sortByRepositoryKey(out, q.Sort)
	if rq.Offset >= len(out) {
		return []model.Snippet{}, nil
	}
	out = out[rq.Offset:]
	if len(out) > rq.Limit {
		out = out[:rq.Limit]
	}
	return out, nil
}

// Search returns public snippets matching q in relevance order.
func (s *SnippetService) Search(ctx context.Context, q string, limit int) ([]model.Snippet, error) {
	if strings.TrimSpace(q) == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}
	return s.searchPublic(ctx, q, limit)
}

func (s *SnippetService) searchPublic(ctx context.Context, q string, limit int) ([]model.Snippet, error) {
	hits, err := s.index.Search(q, limit)
	if err != nil {
		return nil, fmt.Errorf("searching snippets: %w", err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	found, err := s.snippets.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading search results: %w", err)
	}

	// The index can briefly lag a status change.
	out := found[:0]
	for _, sn := range found {
		if sn.IsPublic() {
			out = append(out, sn)
		}
	}
	return out, nil
}

// sortByRepositoryKey applies a storage sort to an in-memory result set.
func sortByRepositoryKey(list []model.Snippet, key repository.SnippetSort) {
	switch key {
	case repository.SortRecent:
		listing.SortSnippets(list, listing.SortNewest)
	case repository.SortPopular, repository.SortLiked:
		listing.SortSnippets(list, listing.SortScore)
	case repository.SortHot:
		listing.SortSnippets(list, listing.SortHot)
	case repository.SortViewed:
		listing.SortSnippets(list, listing.SortViews)
	case repository.SortAlphabetical:
		listing.SortSnippets(list, listing.SortTitle)
	}
}

// ListByOwner lists ownerID's snippets. The owner sees every status; anyone
// else only public ones.
func (s *SnippetService) ListByOwner(ctx context.Context, viewerID, ownerID string, sort repository.SnippetSort, limit, offset int) ([]model.Snippet, error) {
	if !sort.Valid() {
		return nil, apperror.ValidationFailed("sort", fmt.Sprintf("unknown sort %q", sort))
	}

	q := repository.SnippetQuery{OwnerID: ownerID, Sort: sort, Limit: limit, Offset: offset}
	if viewerID == "" || viewerID != ownerID {
		q.Status = model.StatusPublic
	}

	list, err := s.snippets.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing snippets of %s: %w", ownerID, err)
	}
	return list, nil
}

// Update replaces the editable fields of a snippet userID owns. A change of
// code or language is recorded as a new version. An empty Status keeps the
// current one.
func (s *SnippetService) Update(ctx context.Context, userID, id string, in SnippetInput) (*model.Snippet, error) {
	sn, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = sn.Status
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	wasPublic := sn.IsPublic()
	sn.Title = in.Title
	sn.Description = in.Description
	sn.Code = in.Code
	sn.Language = in.Language
	sn.Tags = in.Tags
	sn.Status = in.Status

	if err := s.snippets.Update(ctx, sn, in.Summary); err != nil {
		return nil, fmt.Errorf("updating snippet %s: %w", id, err)
	}

	s.logger.Info("snippet updated",
		slog.String("id", sn.ID),
		slog.String("status", string(sn.Status)),
		slog.Int("versions", sn.VersionCount),
	)

	s.reindex(sn)
	publishSnippet(s.events, model.EventSnippetUpdated, sn, wasPublic)
	return sn, nil
}

// SetStatus publishes, unpublishes or hides a snippet userID owns without
// touching its content.
func (s *SnippetService) SetStatus(ctx context.Context, userID, id string, status model.SnippetStatus) (*model.Snippet, error) {
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", "status must be draft, public or private")
	}
	sn, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sn.Status == status {
		return sn, nil
	}

	wasPublic := sn.IsPublic()
	sn.Status = status
	if err := s.snippets.Update(ctx, sn, ""); err != nil {
		return nil, fmt.Errorf("changing status of %s: %w", id, err)
	}

	s.logger.Info("snippet status changed",
		slog.String("id", sn.ID),
		slog.String("status", string(status)),
	)

	s.reindex(sn)
	publishSnippet(s.events, model.EventSnippetUpdated, sn, wasPublic)
	return sn, nil
}

// Delete removes a snippet userID owns.
func (s *SnippetService) Delete(ctx context.Context, userID, id string) error {
	sn, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.snippets.Delete(ctx, sn.ID); err != nil {
		return fmt.Errorf("deleting snippet %s: %w", id, err)
	}

	s.logger.Info("snippet deleted", slog.String("id", sn.ID))

	if err := s.index.Delete(sn.ID); err != nil {
		s.logger.Warn("failed to remove snippet from index",
			slog.String("id", sn.ID),
			slog.String("error", err.Error()),
		)
	}
	publishSnippet(s.events, model.EventSnippetDeleted, sn, sn.IsPublic())
	return nil
}

// Fork copies a snippet the caller can see into a new private draft owned
// by the caller, titled "<title> (Fork)", and bumps the source's fork count.
func (s *SnippetService) Fork(ctx context.Context, userID, id string) (*model.Snippet, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	src, err := s.getVisible(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading author: %w", err)
	}

	title := src.Title + " (Fork)"
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = string([]rune(title)[:MaxTitleLength])
	}

	fork := &model.Snippet{
		Title:           title,
		Description:     src.Description,
		Code:            src.Code,
		Language:        src.Language,
		Tags:            append([]string(nil), src.Tags...),
		Status:          model.StatusDraft,
		OwnerID:         owner.ID,
		AuthorName:      owner.Name(),
		AuthorPhoto:     owner.PhotoURL,
		ForkOf:          src.ID,
		OriginalOwnerID: src.OwnerID,
		OriginalTitle:   src.Title,

		OriginalOwnerName: src.AuthorName,
	}

	if err := s.snippets.CreateFork(ctx, fork); err != nil {
		return nil, fmt.Errorf("forking snippet %s: %w", id, err)
	}

	s.logger.Info("snippet forked",
		slog.String("source", src.ID),
		slog.String("fork", fork.ID),
		slog.String("owner", userID),
	)

	src.ForkCount++
	publishSnippet(s.events, model.EventSnippetForked, src, src.IsPublic())
	publishSnippet(s.events, model.EventSnippetCreated, fork, false)
	return fork, nil
}

// Versions returns a visible snippet's history, newest first.
func (s *SnippetService) Versions(ctx context.Context, viewerID, id string) ([]model.SnippetVersion, error) {
	sn, err := s.getVisible(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	list, err := s.versions.ListVersions(ctx, sn.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", id, err)
	}
	return list, nil
}

// Revert restores one of the snippet's earlier versions. Owner only.
func (s *SnippetService) Revert(ctx context.Context, userID, id, versionID string) (*model.Snippet, error) {
	sn, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	reverted, err := s.versions.Revert(ctx, sn.ID, versionID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reverting snippet %s: %w", id, err)
	}

	s.logger.Info("snippet reverted",
		slog.String("id", sn.ID),
		slog.String("version", versionID),
	)

	s.reindex(reverted)
	publishSnippet(s.events, model.EventSnippetUpdated, reverted, sn.IsPublic())
	return reverted, nil
}

// reindex keeps the search index in step with storage. Index failures are
// logged; the snippet is already saved and `snippime reindex` repairs drift.
func (s *SnippetService) reindex(sn *model.Snippet) {
	if err := s.index.Put(sn); err != nil {
		s.logger.Warn("failed to index snippet",
			slog.String("id", sn.ID),
			slog.String("error", err.Error()),
		)
	}
}
