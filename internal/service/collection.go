package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/listing"
	"github.com/sakif/snippime/internal/live"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

// CollectionInput is the editable part of a collection.
type CollectionInput struct {
	Title       string
	Description string
	Visibility  model.Visibility
}

// ToggleResult reports the outcome of adding or removing a collection item.
type ToggleResult struct {
	CollectionID string `json:"collectionId"`
	SnippetID    string `json:"snippetId"`
	Added        bool   `json:"added"`
	ItemCount    int    `json:"itemCount"`
}

// CollectionService manages users' snippet collections.
type CollectionService struct {
	collections repository.CollectionRepository
	snippets    repository.SnippetRepository
	users       repository.UserRepository
	events      Publisher
	logger      *slog.Logger
}

func NewCollectionService(
	collections repository.CollectionRepository,
	snippets repository.SnippetRepository,
	users repository.UserRepository,
	events Publisher,
	logger *slog.Logger,
) *CollectionService {
	if events == nil {
		events = nopPublisher{}
	}
	return &CollectionService{
		collections: collections,
		snippets:    snippets,
		users:       users,
		events:      events,
		logger:      logger,
	}
}

func (in *CollectionInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

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
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPrivate
	}
	if !in.Visibility.Valid() {
		return apperror.ValidationFailed("visibility", "visibility must be public or private")
	}
	return nil
}

func (s *CollectionService) publish(typ model.EventType, c *model.Collection) {
	var data any
	if typ != model.EventCollectionDeleted {
		data = c
	}
	s.events.Publish(model.Event{Type: typ, Topic: live.UserTopic(c.OwnerID), ID: c.ID, Data: data})
}

// Create stores a new collection owned by userID. Visibility defaults to
// private.
func (s *CollectionService) Create(ctx context.Context, userID string, in CollectionInput) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading owner: %w", err)
	}

	c := &model.Collection{
		Title:       in.Title,
		Description: in.Description,
		Visibility:  in.Visibility,
		OwnerID:     owner.ID,
		OwnerName:   owner.Name(),
	}
	if err := s.collections.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	s.logger.Info("collection created",
		slog.String("id", c.ID),
		slog.String("owner", c.OwnerID),
	)
	s.publish(model.EventCollectionChanged, c)
	return c, nil
}

func (s *CollectionService) getVisible(ctx context.Context, viewerID, id string) (*model.Collection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "collection ID is required")
	}
	c, err := s.collections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.VisibleTo(viewerID) {
		return nil, apperror.NotFound("collection", id)
	}
	return c, nil
}

func (s *CollectionService) getOwned(ctx context.Context, userID, id string) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.getVisible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != userID {
		return nil, apperror.Forbidden("you do not own this collection")
	}
	return c, nil
}

// Get returns a public collection, or a private one to its owner. Reads by
// anyone else count as a view.
func (s *CollectionService) Get(ctx context.Context, viewerID, id string) (*model.Collection, error) {
	c, err := s.getVisible(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	if viewerID != c.OwnerID {
		if err := s.collections.IncrementViews(ctx, c.ID); err != nil {
			s.logger.Warn("failed to count collection view",
				slog.String("id", c.ID),
				slog.String("error", err.Error()),
			)
		} else {
			c.ViewsCount++
		}
	}
	return c, nil
}

// Update replaces the editable fields of a collection userID owns.
func (s *CollectionService) Update(ctx context.Context, userID, id string, in CollectionInput) (*model.Collection, error) {
	c, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Visibility == "" {
		in.Visibility = c.Visibility
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	c.Title = in.Title
	c.Description = in.Description
	c.Visibility = in.Visibility
	if err := s.collections.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("updating collection %s: %w", id, err)
	}

	s.publish(model.EventCollectionChanged, c)
	return c, nil
}

// Delete removes a collection and its items. Owner only.
func (s *CollectionService) Delete(ctx context.Context, userID, id string) error {
	c, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.collections.Delete(ctx, c.ID); err != nil {
		return fmt.Errorf("deleting collection %s: %w", id, err)
	}

	s.logger.Info("collection deleted", slog.String("id", c.ID))
	s.publish(model.EventCollectionDeleted, c)
	return nil
}

// ListMine returns userID's collections filtered and sorted in memory.
func (s *CollectionService) ListMine(ctx context.Context, userID string, f listing.CollectionFilter, sort string) ([]model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	list, err := s.collections.ListByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	out := listing.FilterCollections(list, f)
	listing.SortCollections(out, sort)
	return out, nil
}

// ListPublic returns ownerID's public collections.
func (s *CollectionService) ListPublic(ctx context.Context, ownerID string) ([]model.Collection, error) {
	list, err := s.collections.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing collections of %s: %w", ownerID, err)
	}
	return listing.FilterCollections(list, listing.CollectionFilter{Visibility: string(model.VisibilityPublic)}), nil
}

// ToggleItem saves the snippet into the collection, or removes it when it is
// already there. The caller must own the collection and be able to see the
// snippet; removal of a snippet that has since become invisible is allowed.
func (s *CollectionService) ToggleItem(ctx context.Context, userID, collectionID, snippetID string) (*ToggleResult, error) {
	c, err := s.getOwned(ctx, userID, collectionID)
	if err != nil {
		return nil, err
	}

	sn, err := s.snippets.GetByID(ctx, snippetID)
	if err != nil {
		return nil, err
	}

	if !sn.VisibleTo(userID) {
		held, err := s.collections.Containing(ctx, userID, snippetID)
		if err != nil {
			return nil, fmt.Errorf("checking membership: %w", err)
		}
		if !slices.Contains(held, c.ID) {
			return nil, apperror.NotFound("snippet", snippetID)
		}
	}

	added, count, err := s.collections.ToggleItem(ctx, c.ID, sn.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("toggling item: %w", err)
	}

	s.logger.Debug("collection item toggled",
		slog.String("collection", c.ID),
		slog.String("snippet", sn.ID),
		slog.Bool("added", added),
	)

	c.ItemCount = count
	s.publish(model.EventCollectionChanged, c)
	return &ToggleResult{CollectionID: c.ID, SnippetID: sn.ID, Added: added, ItemCount: count}, nil
}

// Items returns the snippets saved in a collection that the viewer can see,
// in the order they were added.
func (s *CollectionService) Items(ctx context.Context, viewerID, id string) ([]model.Snippet, error) {
	c, err := s.getVisible(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}

	items, err := s.collections.ListItems(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of %s: %w", id, err)
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.SnippetID
	}
	found, err := s.snippets.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading items of %s: %w", id, err)
	}

	out := make([]model.Snippet, 0, len(found))
	for _, sn := range found {
		if sn.VisibleTo(viewerID) {
			out = append(out, sn)
		}
	}
	return out, nil
}

// Membership returns the IDs of userID's collections holding snippetID.
func (s *CollectionService) Membership(ctx context.Context, userID, snippetID string) ([]string, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	ids, err := s.collections.Containing(ctx, userID, snippetID)
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	return ids, nil
}
