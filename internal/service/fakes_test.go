package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/ranking"
	"github.com/sakif/snippime/internal/repository"
	"github.com/sakif/snippime/internal/search"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fakeClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tick() time.Time {
	fakeClock = fakeClock.Add(time.Second)
	return fakeClock
}

// --- users ---

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int

	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) add(u *model.User) *model.User {
	f.nextID++
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", f.nextID)
	}
	u.CreatedAt = tick()
	u.UpdatedAt = u.CreatedAt
	c := *u
	f.users[u.ID] = &c
	return u
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.PasswordHash != "" && u.PasswordHash != "" && existing.Email == u.Email {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "an account with these credentials already exists"}
		}
	}
	f.add(u)
	return nil
}

func (f *fakeUserRepo) upsert(u *model.User, match func(*model.User) bool) error {
	for _, existing := range f.users {
		if match(existing) {
			existing.Email = u.Email
			if u.PhotoURL != "" {
				existing.PhotoURL = u.PhotoURL
			}
			*u = *existing
			return nil
		}
	}
	return f.Create(context.Background(), u)
}

func (f *fakeUserRepo) UpsertGitHub(_ context.Context, u *model.User) error {
	return f.upsert(u, func(e *model.User) bool { return e.GitHubID != 0 && e.GitHubID == u.GitHubID })
}

func (f *fakeUserRepo) UpsertGoogle(_ context.Context, u *model.User) error {
	return f.upsert(u, func(e *model.User) bool { return e.GoogleID != "" && e.GoogleID == u.GoogleID })
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.PasswordHash != "" && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, u *model.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	c := *u
	f.users[u.ID] = &c
	return nil
}

// --- snippets and versions ---

type fakeSnippetRepo struct {
	mu       sync.Mutex
	snippets map[string]*model.Snippet
	order    []string
	versions map[string][]model.SnippetVersion
	nextID   int

	views     map[string]int
	createErr error
}

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{
		snippets: make(map[string]*model.Snippet),
		versions: make(map[string][]model.SnippetVersion),
		views:    make(map[string]int),
	}
}

func (f *fakeSnippetRepo) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeSnippetRepo) addVersion(sn *model.Snippet, summary, author string, initial bool) model.SnippetVersion {
	v := model.SnippetVersion{
		ID:        f.id("ver"),
		SnippetID: sn.ID,
		Code:      sn.Code,
		Language:  sn.Language,
		Summary:   summary,
		AuthorID:  author,
		IsInitial: initial,
		CreatedAt: tick(),
	}
	f.versions[sn.ID] = append(f.versions[sn.ID], v)
	sn.VersionCount = len(f.versions[sn.ID])
	return v
}

func (f *fakeSnippetRepo) store(sn *model.Snippet) {
	c := *sn
	c.Tags = append([]string(nil), sn.Tags...)
	f.snippets[sn.ID] = &c
}

func (f *fakeSnippetRepo) Create(_ context.Context, sn *model.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	sn.ID = f.id("sn")
	sn.CreatedAt = tick()
	sn.UpdatedAt = sn.CreatedAt
	sn.ScoreHot = ranking.HotScore(0, sn.CreatedAt)
	f.addVersion(sn, "Initial version", sn.OwnerID, true)
	f.store(sn)
	f.order = append(f.order, sn.ID)
	return nil
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	c := *sn
	return &c, nil
}

func (f *fakeSnippetRepo) GetMany(_ context.Context, ids []string) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Snippet{}
	for _, id := range ids {
		if sn, ok := f.snippets[id]; ok {
			out = append(out, *sn)
		}
	}
	return out, nil
}

// List filters like the real store and returns newest first; it ignores
// Sort, which the sqlite tests cover.
func (f *fakeSnippetRepo) List(_ context.Context, q repository.SnippetQuery) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q = q.Normalize()
	out := []model.Snippet{}
	for i := len(f.order) - 1; i >= 0; i-- {
		sn, ok := f.snippets[f.order[i]]
		if !ok {
			continue
		}
		if q.Status != "" && sn.Status != q.Status {
			continue
		}
		if q.OwnerID != "" && sn.OwnerID != q.OwnerID {
			continue
		}
		if q.Language != "" && sn.Language != q.Language {
			continue
		}
		if q.Tag != "" && !slices.Contains(sn.Tags, q.Tag) {
			continue
		}
		out = append(out, *sn)
	}
	if q.Offset >= len(out) {
		return []model.Snippet{}, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeSnippetRepo) Update(_ context.Context, sn *model.Snippet, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.snippets[sn.ID]
	if !ok {
		return apperror.NotFound("snippet", sn.ID)
	}
	if old.Code != sn.Code || old.Language != sn.Language {
		if summary == "" {
			summary = "Updated code"
		}
		f.addVersion(sn, summary, sn.OwnerID, false)
	}
	sn.UpdatedAt = tick()
	f.store(sn)
	return nil
}

func (f *fakeSnippetRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)
	delete(f.versions, id)
	return nil
}

func (f *fakeSnippetRepo) IncrementViews(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sn, ok := f.snippets[id]
	if !ok {
		return apperror.NotFound("snippet", id)
	}
	sn.ViewsCount++
	f.views[id]++
	return nil
}

func (f *fakeSnippetRepo) CreateFork(ctx context.Context, fork *model.Snippet) error {
	f.mu.Lock()
	src, ok := f.snippets[fork.ForkOf]
	if !ok {
		f.mu.Unlock()
		return apperror.NotFound("snippet", fork.ForkOf)
	}
	src.ForkCount++
	f.mu.Unlock()
	return f.Create(ctx, fork)
}

func (f *fakeSnippetRepo) Rescore(context.Context) (int, error) {
	return 0, nil
}

func (f *fakeSnippetRepo) ListVersions(_ context.Context, snippetID string) ([]model.SnippetVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.versions[snippetID]
	out := make([]model.SnippetVersion, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (f *fakeSnippetRepo) GetVersion(_ context.Context, id string) (*model.SnippetVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.versions {
		for _, v := range list {
			if v.ID == id {
				return &v, nil
			}
		}
	}
	return nil, apperror.NotFound("version", id)
}

func (f *fakeSnippetRepo) Revert(ctx context.Context, snippetID, versionID, authorID string) (*model.Snippet, error) {
	v, err := f.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.SnippetID != snippetID {
		return nil, apperror.NotFound("version", versionID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	sn := f.snippets[snippetID]
	sn.Code = v.Code
	sn.Language = v.Language
	f.addVersion(sn, "Reverted to version from "+v.CreatedAt.Format(time.DateTime), authorID, false)
	list := f.versions[snippetID]
	list[len(list)-1].IsRevert = true
	list[len(list)-1].RevertedFrom = v.ID
	c := *sn
	return &c, nil
}

// --- votes ---

type fakeVoteRepo struct {
	mu       sync.Mutex
	snippets *fakeSnippetRepo
	votes    map[string]int // userID|snippetID
	liked    []string       // userID|snippetID, in vote order
	applyErr error
}

func newFakeVoteRepo(snippets *fakeSnippetRepo) *fakeVoteRepo {
	return &fakeVoteRepo{snippets: snippets, votes: make(map[string]int)}
}

func voteKey(userID, snippetID string) string { return userID + "|" + snippetID }

func (f *fakeVoteRepo) ApplyVote(_ context.Context, userID, snippetID string, value int) (*model.VoteResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snippets.mu.Lock()
	defer f.snippets.mu.Unlock()

	sn, ok := f.snippets.snippets[snippetID]
	if !ok {
		return nil, apperror.NotFound("snippet", snippetID)
	}

	key := voteKey(userID, snippetID)
	old := f.votes[key]
	t := ranking.ApplyVote(ranking.Tally{Score: sn.Score, Up: sn.VoteCounts.Up, Down: sn.VoteCounts.Down}, old, value)
	sn.Score = t.Score
	sn.VoteCounts = model.VoteCounts{Up: t.Up, Down: t.Down}
	sn.ScoreHot = ranking.HotScore(t.Score, sn.CreatedAt)

	if value == 0 {
		delete(f.votes, key)
	} else {
		f.votes[key] = value
	}
	if value == 1 && old != 1 {
		f.liked = append(f.liked, key)
	}

	return &model.VoteResult{
		SnippetID:  snippetID,
		Value:      value,
		Score:      sn.Score,
		VoteCounts: sn.VoteCounts,
		ScoreHot:   sn.ScoreHot,
	}, nil
}

func (f *fakeVoteRepo) GetVote(_ context.Context, userID, snippetID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.votes[voteKey(userID, snippetID)], nil
}

func (f *fakeVoteRepo) Liked(ctx context.Context, userID string) ([]model.Snippet, error) {
	f.mu.Lock()
	var ids []string
	for i := len(f.liked) - 1; i >= 0; i-- {
		key := f.liked[i]
		if f.votes[key] != 1 || !strings.HasPrefix(key, userID+"|") {
			continue
		}
		id := strings.TrimPrefix(key, userID+"|")
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()
	return f.snippets.GetMany(ctx, ids)
}

// --- collections ---

type fakeCollectionRepo struct {
	collections map[string]*model.Collection
	items       map[string][]model.CollectionItem
	nextID      int
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{
		collections: make(map[string]*model.Collection),
		items:       make(map[string][]model.CollectionItem),
	}
}

func (f *fakeCollectionRepo) Create(_ context.Context, c *model.Collection) error {
	f.nextID++
	c.ID = fmt.Sprintf("col-%d", f.nextID)
	c.CreatedAt = tick()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	f.collections[c.ID] = &cp
	return nil
}

func (f *fakeCollectionRepo) GetByID(_ context.Context, id string) (*model.Collection, error) {
	c, ok := f.collections[id]
	if !ok {
		return nil, apperror.NotFound("collection", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCollectionRepo) Update(_ context.Context, c *model.Collection) error {
	old, ok := f.collections[c.ID]
	if !ok {
		return apperror.NotFound("collection", c.ID)
	}
	old.Title, old.Description, old.Visibility = c.Title, c.Description, c.Visibility
	old.UpdatedAt = tick()
	return nil
}

func (f *fakeCollectionRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.collections[id]; !ok {
		return apperror.NotFound("collection", id)
	}
	delete(f.collections, id)
	delete(f.items, id)
	return nil
}

func (f *fakeCollectionRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Collection, error) {
	out := []model.Collection{}
	for i := 1; i <= f.nextID; i++ {
		c, ok := f.collections[fmt.Sprintf("col-%d", i)]
		if ok && c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) ToggleItem(_ context.Context, collectionID, snippetID, userID string) (bool, int, error) {
	c, ok := f.collections[collectionID]
	if !ok {
		return false, 0, apperror.NotFound("collection", collectionID)
	}
	items := f.items[collectionID]
	for i, it := range items {
		if it.SnippetID == snippetID {
			f.items[collectionID] = append(items[:i], items[i+1:]...)
			c.ItemCount--
			return false, c.ItemCount, nil
		}
	}
	f.items[collectionID] = append(items, model.CollectionItem{
		CollectionID: collectionID, SnippetID: snippetID, AddedBy: userID, AddedAt: tick(),
	})
	c.ItemCount++
	return true, c.ItemCount, nil
}

func (f *fakeCollectionRepo) ListItems(_ context.Context, collectionID string) ([]model.CollectionItem, error) {
	return append([]model.CollectionItem(nil), f.items[collectionID]...), nil
}

func (f *fakeCollectionRepo) Containing(_ context.Context, ownerID, snippetID string) ([]string, error) {
	out := []string{}
	for id, items := range f.items {
		if f.collections[id].OwnerID != ownerID {
			continue
		}
		for _, it := range items {
			if it.SnippetID == snippetID {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) IncrementViews(_ context.Context, id string) error {
	c, ok := f.collections[id]
	if !ok {
		return apperror.NotFound("collection", id)
	}
	c.ViewsCount++
	return nil
}

// --- search index and publisher ---

// fakeIndex matches a query against titles only.
type fakeIndex struct {
	docs      map[string]string
	order     []string
	searchErr error
	putErr    error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]string)}
}

func (f *fakeIndex) Put(sn *model.Snippet) error {
	if f.putErr != nil {
		return f.putErr
	}
	if !sn.IsPublic() {
		return f.Delete(sn.ID)
	}
	if _, ok := f.docs[sn.ID]; !ok {
		f.order = append(f.order, sn.ID)
	}
	f.docs[sn.ID] = strings.ToLower(sn.Title)
	return nil
}

func (f *fakeIndex) Delete(id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) Search(q string, limit int) ([]search.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	q = strings.ToLower(q)
	var hits []search.Hit
	for _, id := range f.order {
		title, ok := f.docs[id]
		if ok && strings.Contains(title, q) {
			hits = append(hits, search.Hit{ID: id, Score: 1})
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) topics(typ model.EventType) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev.Topic)
		}
	}
	return out
}

func (p *recordingPublisher) on(topic string) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, ev := range p.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// --- wiring ---

type testEnv struct {
	users       *fakeUserRepo
	snippets    *fakeSnippetRepo
	votes       *fakeVoteRepo
	collections *fakeCollectionRepo
	index       *fakeIndex
	events      *recordingPublisher

	snippetSvc    *SnippetService
	voteSvc       *VoteService
	collectionSvc *CollectionService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		users:       newFakeUserRepo(),
		snippets:    newFakeSnippetRepo(),
		collections: newFakeCollectionRepo(),
		index:       newFakeIndex(),
		events:      &recordingPublisher{},
	}
	e.votes = newFakeVoteRepo(e.snippets)
	logger := discardLogger()
	e.snippetSvc = NewSnippetService(e.snippets, e.snippets, e.users, e.index, e.events, logger)
	e.voteSvc = NewVoteService(e.votes, e.snippets, e.events, logger)
	e.collectionSvc = NewCollectionService(e.collections, e.snippets, e.users, e.events, logger)
	return e
}

func (e *testEnv) user(name string) string {
	return e.users.add(&model.User{DisplayName: name, Email: strings.ToLower(name) + "@example.com"}).ID
}

func (e *testEnv) snippet(ownerID, title string, status model.SnippetStatus) *model.Snippet {
	sn, err := e.snippetSvc.Create(context.Background(), ownerID, SnippetInput{
		Title:    title,
		Code:     "console.log('" + title + "')",
		Language: "javascript",
		Status:   status,
	})
	if err != nil {
		panic(err)
	}
	return sn
}

var errBoom = errors.New("database is on fire")
