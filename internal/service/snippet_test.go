package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/live"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

// =========================================================================
// Create TESTS
// =========================================================================

func TestSnippetCreate_Defaults(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")

	sn, err := e.snippetSvc.Create(context.Background(), alice, SnippetInput{
		Title: "  Debounce  ",
		Code:  "function debounce() {}",
		Tags:  []string{"React", "react", " hooks "},
	})
	require.NoError(t, err)

	assert.Equal(t, "Debounce", sn.Title)
	assert.Equal(t, "javascript", sn.Language)
	assert.Equal(t, model.StatusDraft, sn.Status)
	assert.Equal(t, []string{"react", "hooks"}, sn.Tags)
	assert.Equal(t, "Alice", sn.AuthorName)
	assert.Equal(t, 1, sn.VersionCount)

	// Drafts stay out of the index and off public topics.
	assert.NotContains(t, e.index.docs, sn.ID)
	assert.Equal(t, []string{live.UserTopic(alice)}, e.events.topics(model.EventSnippetCreated))
}

func TestSnippetCreate_PublicIsIndexedAndBroadcast(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")

	sn := e.snippet(alice, "Quick sort", model.StatusPublic)

	assert.Contains(t, e.index.docs, sn.ID)
	assert.ElementsMatch(t,
		[]string{live.UserTopic(alice), live.TopicFeed, live.SnippetTopic(sn.ID)},
		e.events.topics(model.EventSnippetCreated))
}

func TestSnippetCreate_Validation(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")

	tests := []struct {
		name  string
		in    SnippetInput
		field string
	}{
		{"missing title", SnippetInput{Code: "x"}, "title"},
		{"title too long", SnippetInput{Title: strings.Repeat("a", MaxTitleLength+1), Code: "x"}, "title"},
		{"missing code", SnippetInput{Title: "t", Code: "   "}, "code"},
		{"code too long", SnippetInput{Title: "t", Code: strings.Repeat("a", MaxCodeLength+1)}, "code"},
		{"unknown language", SnippetInput{Title: "t", Code: "x", Language: "cobol"}, "language"},
		{"unknown status", SnippetInput{Title: "t", Code: "x", Status: "secret"}, "status"},
		{"description too long", SnippetInput{Title: "t", Code: "x", Description: strings.Repeat("d", MaxDescriptionLength+1)}, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.snippetSvc.Create(context.Background(), alice, tt.in)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestSnippetCreate_TitleLimitCountsRunes(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")

	_, err := e.snippetSvc.Create(context.Background(), alice, SnippetInput{
		Title: strings.Repeat("é", MaxTitleLength),
		Code:  "x",
	})
	assert.NoError(t, err)
}

func TestSnippetCreate_RequiresUser(t *testing.T) {
	e := newTestEnv()
	_, err := e.snippetSvc.Create(context.Background(), "", SnippetInput{Title: "t", Code: "x"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestSnippetCreate_RepositoryError(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	e.snippets.createErr = errBoom

	_, err := e.snippetSvc.Create(context.Background(), alice, SnippetInput{Title: "t", Code: "x"})
	assert.ErrorIs(t, err, errBoom)
}

// =========================================================================
// Get / visibility TESTS
// =========================================================================

func TestSnippetGet_Visibility(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")

	pub := e.snippet(alice, "public", model.StatusPublic)
	draft := e.snippet(alice, "draft", model.StatusDraft)
	priv := e.snippet(alice, "private", model.StatusPrivate)

	for _, viewer := range []string{"", bob, alice} {
		_, err := e.snippetSvc.Get(context.Background(), viewer, pub.ID)
		assert.NoError(t, err, "viewer %q should see public snippet", viewer)
	}

	for _, sn := range []*model.Snippet{draft, priv} {
		_, err := e.snippetSvc.Get(context.Background(), "", sn.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		_, err = e.snippetSvc.Get(context.Background(), bob, sn.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		_, err = e.snippetSvc.Get(context.Background(), alice, sn.ID)
		assert.NoError(t, err)
	}
}

func TestSnippetGet_CountsViewsForNonOwners(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	sn := e.snippet(alice, "viewed", model.StatusPublic)

	_, err := e.snippetSvc.Get(context.Background(), alice, sn.ID)
	require.NoError(t, err)
	got, err := e.snippetSvc.Get(context.Background(), bob, sn.ID)
	require.NoError(t, err)
	_, err = e.snippetSvc.Get(context.Background(), "", sn.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, got.ViewsCount)
	assert.Equal(t, 2, e.snippets.views[sn.ID])
}

func TestSnippetGetPublic_HidesOwnerDrafts(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	draft := e.snippet(alice, "draft", model.StatusDraft)

	_, err := e.snippetSvc.GetPublic(context.Background(), draft.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// Discover / Search TESTS
// =========================================================================

func TestSnippetDiscover_PublicOnlyWithFilters(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	ctx := context.Background()

	js := e.snippet(alice, "js one", model.StatusPublic)
	_, err := e.snippetSvc.Create(ctx, alice, SnippetInput{Title: "py one", Code: "print()", Language: "python", Status: model.StatusPublic, Tags: []string{"cli"}})
	require.NoError(t, err)
	e.snippet(alice, "hidden", model.StatusDraft)

	all, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Language: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyJS, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Language: "JavaScript"})
	require.NoError(t, err)
	require.Len(t, onlyJS, 1)
	assert.Equal(t, js.ID, onlyJS[0].ID)

	tagged, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Tag: "CLI"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "py one", tagged[0].Title)
}

func TestSnippetDiscover_InvalidSort(t *testing.T) {
	e := newTestEnv()
	_, err := e.snippetSvc.Discover(context.Background(), DiscoverQuery{Sort: "random"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSnippetDiscover_WithQueryUsesIndex(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	ctx := context.Background()

	a := e.snippet(alice, "binary search", model.StatusPublic)
	b := e.snippet(alice, "search params hook", model.StatusPublic)
	e.snippet(alice, "unrelated", model.StatusPublic)

	got, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Query: "search"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID, "relevance order is kept without a sort")
	assert.Equal(t, b.ID, got[1].ID)

	sorted, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Query: "search", Sort: repository.SortRecent})
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, b.ID, sorted[0].ID)

	paged, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Query: "search", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, b.ID, paged[0].ID)
}

func TestSnippetDiscover_WithQueryFiltersByTag(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	ctx := context.Background()

	tagged, err := e.snippetSvc.Create(ctx, alice, SnippetInput{
		Title: "search hook", Code: "x", Status: model.StatusPublic, Tags: []string{"React", "hooks"},
	})
	require.NoError(t, err)
	e.snippet(alice, "search helper", model.StatusPublic)

	got, err := e.snippetSvc.Discover(ctx, DiscoverQuery{Query: "search", Tag: "hooks"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tagged.ID, got[0].ID)

	got, err = e.snippetSvc.Discover(ctx, DiscoverQuery{Query: "search", Tag: "vue"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnippetSearch_DropsStaleNonPublicHits(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	sn := e.snippet(alice, "stale result", model.StatusPublic)

	// Simulate an index that missed the status change.
	e.snippets.snippets[sn.ID].Status = model.StatusPrivate

	got, err := e.snippetSvc.Search(context.Background(), "stale", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnippetSearch_RequiresQuery(t *testing.T) {
	e := newTestEnv()
	_, err := e.snippetSvc.Search(context.Background(), "  ", 10)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSnippetSearch_IndexError(t *testing.T) {
	e := newTestEnv()
	e.index.searchErr = errBoom
	_, err := e.snippetSvc.Search(context.Background(), "x", 10)
	assert.ErrorIs(t, err, errBoom)
}

// =========================================================================
// ListByOwner TESTS
// =========================================================================

func TestSnippetListByOwner(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	e.snippet(alice, "pub", model.StatusPublic)
	e.snippet(alice, "draft", model.StatusDraft)
	e.snippet(alice, "priv", model.StatusPrivate)

	mine, err := e.snippetSvc.ListByOwner(context.Background(), alice, alice, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	theirs, err := e.snippetSvc.ListByOwner(context.Background(), bob, alice, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "pub", theirs[0].Title)

	anon, err := e.snippetSvc.ListByOwner(context.Background(), "", alice, repository.SortHot, 0, 0)
	require.NoError(t, err)
	assert.Len(t, anon, 1)
}

// =========================================================================
// Update / SetStatus / Delete TESTS
// =========================================================================

func TestSnippetUpdate_OwnerOnly(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	sn := e.snippet(alice, "mine", model.StatusPublic)

	_, err := e.snippetSvc.Update(context.Background(), bob, sn.ID, SnippetInput{Title: "stolen", Code: "x"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = e.snippetSvc.Update(context.Background(), "", sn.ID, SnippetInput{Title: "anon", Code: "x"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestSnippetUpdate_RecordsVersionOnCodeChange(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	sn := e.snippet(alice, "versioned", model.StatusPublic)
	ctx := context.Background()

	same, err := e.snippetSvc.Update(ctx, alice, sn.ID, SnippetInput{Title: "renamed", Code: sn.Code, Language: sn.Language})
	require.NoError(t, err)
	assert.Equal(t, 1, same.VersionCount)
	assert.Equal(t, model.StatusPublic, same.Status, "empty status keeps the current one")

	changed, err := e.snippetSvc.Update(ctx, alice, sn.ID, SnippetInput{Title: "renamed", Code: "new code", Summary: "rewrite"})
	require.NoError(t, err)
	assert.Equal(t, 2, changed.VersionCount)

	versions, err := e.snippetSvc.Versions(ctx, alice, sn.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "rewrite", versions[0].Summary)
	assert.True(t, versions[1].IsInitial)
}

func TestSnippetUpdate_UnpublishNotifiesPublicTopicsWithoutData(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	sn := e.snippet(alice, "going private", model.StatusPublic)

	_, err := e.snippetSvc.Update(context.Background(), alice, sn.ID, SnippetInput{
		Title: sn.Title, Code: sn.Code, Status: model.StatusPrivate,
	})
	require.NoError(t, err)

	assert.NotContains(t, e.index.docs, sn.ID)

	feed := e.events.on(live.TopicFeed)
	last := feed[len(feed)-1]
	assert.Equal(t, model.EventSnippetUpdated, last.Type)
	assert.Nil(t, last.Data)
}

func TestSnippetSetStatus(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	sn := e.snippet(alice, "draft", model.StatusDraft)
	ctx := context.Background()

	got, err := e.snippetSvc.SetStatus(ctx, alice, sn.ID, model.StatusPublic)
	require.NoError(t, err)
	assert.True(t, got.IsPublic())
	assert.Contains(t, e.index.docs, sn.ID)
	assert.Equal(t, 1, got.VersionCount)

	_, err = e.snippetSvc.SetStatus(ctx, alice, sn.ID, "archived")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSnippetDelete(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	sn := e.snippet(alice, "doomed", model.StatusPublic)
	ctx := context.Background()

	assert.ErrorIs(t, e.snippetSvc.Delete(ctx, bob, sn.ID), apperror.ErrForbidden)
	require.NoError(t, e.snippetSvc.Delete(ctx, alice, sn.ID))

	assert.NotContains(t, e.index.docs, sn.ID)
	_, err := e.snippetSvc.Get(ctx, alice, sn.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	for _, ev := range e.events.on(live.TopicFeed) {
		if ev.Type == model.EventSnippetDeleted {
			assert.Nil(t, ev.Data)
		}
	}
}

// =========================================================================
// Fork TESTS
// =========================================================================

func TestSnippetFork(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	src := e.snippet(alice, "original", model.StatusPublic)
	ctx := context.Background()

	fork, err := e.snippetSvc.Fork(ctx, bob, src.ID)
	require.NoError(t, err)

	assert.Equal(t, "original (Fork)", fork.Title)
	assert.Equal(t, model.StatusDraft, fork.Status)
	assert.Equal(t, bob, fork.OwnerID)
	assert.Equal(t, src.ID, fork.ForkOf)
	assert.Equal(t, alice, fork.OriginalOwnerID)
	assert.Equal(t, "original", fork.OriginalTitle)
	assert.Equal(t, "Alice", fork.OriginalOwnerName)
	assert.Equal(t, src.Code, fork.Code)

	stored, err := e.snippets.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ForkCount)
}

func TestSnippetFork_Rules(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	priv := e.snippet(alice, "secret", model.StatusPrivate)
	pub := e.snippet(alice, "open", model.StatusPublic)
	ctx := context.Background()

	_, err := e.snippetSvc.Fork(ctx, "", pub.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = e.snippetSvc.Fork(ctx, bob, priv.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	own, err := e.snippetSvc.Fork(ctx, alice, priv.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret (Fork)", own.Title)
}

func TestSnippetFork_TruncatesLongTitle(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	src := e.snippet(alice, strings.Repeat("t", MaxTitleLength), model.StatusPublic)

	fork, err := e.snippetSvc.Fork(context.Background(), alice, src.ID)
	require.NoError(t, err)
	assert.Len(t, []rune(fork.Title), MaxTitleLength)
}

// =========================================================================
// Versions / Revert TESTS
// =========================================================================

func TestSnippetRevert(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	sn := e.snippet(alice, "history", model.StatusPublic)
	ctx := context.Background()

	_, err := e.snippetSvc.Update(ctx, alice, sn.ID, SnippetInput{Title: sn.Title, Code: "v2"})
	require.NoError(t, err)

	versions, err := e.snippetSvc.Versions(ctx, bob, sn.ID)
	require.NoError(t, err)
	initial := versions[len(versions)-1]

	_, err = e.snippetSvc.Revert(ctx, bob, sn.ID, initial.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	reverted, err := e.snippetSvc.Revert(ctx, alice, sn.ID, initial.ID)
	require.NoError(t, err)
	assert.Equal(t, sn.Code, reverted.Code)

	versions, err = e.snippetSvc.Versions(ctx, alice, sn.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.True(t, versions[0].IsRevert)
	assert.Equal(t, initial.ID, versions[0].RevertedFrom)

	_, err = e.snippetSvc.Revert(ctx, alice, sn.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSnippetVersions_HiddenForOthers(t *testing.T) {
	e := newTestEnv()
	alice := e.user("Alice")
	bob := e.user("Bob")
	sn := e.snippet(alice, "draft", model.StatusDraft)

	_, err := e.snippetSvc.Versions(context.Background(), bob, sn.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
