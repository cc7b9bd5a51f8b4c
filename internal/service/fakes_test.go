package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// fakeStore implements all three repository interfaces over maps. The
// service tests exercise business rules (authorization, toggling, shaping),
// not SQL, which has its own tests in repository/sqldb. A mutex is needed
// because the snippet service fetches tags from several goroutines.

type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	clock    time.Time
	snippets map[string]*model.Snippet
	tags     map[string][]string
	likes    map[[2]string]time.Time
	comments map[string]*model.Comment
	users    map[string]*model.UserWithPassword

	failTags error // returned by TagsOf when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		snippets: make(map[string]*model.Snippet),
		tags:     make(map[string][]string),
		likes:    make(map[[2]string]time.Time),
		comments: make(map[string]*model.Comment),
		users:    make(map[string]*model.UserWithPassword),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) likeCount(snippetID string) int {
	n := 0
	for k := range f.likes {
		if k[1] == snippetID {
			n++
		}
	}
	return n
}

func (f *fakeStore) snapshot(s *model.Snippet) model.Snippet {
	out := *s
	out.LikeCount = f.likeCount(s.ID)
	return out
}

// ----- SnippetRepository -----

type fakeSnippets struct{ *fakeStore }

func (f fakeSnippets) Create(_ context.Context, ownerID string, in model.NewSnippet) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.TrimSpace(in.Title) == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}
	at := f.tick()
	s := &model.Snippet{
		ID: f.id("snip"), UserID: ownerID, Title: in.Title, Language: in.Language,
		Code: in.Code, Description: in.Description, Visibility: in.Visibility,
		CreatedAt: at, UpdatedAt: at,
	}
	f.snippets[s.ID] = s
	f.tags[s.ID] = append([]string(nil), in.Tags...)
	out := f.snapshot(s)
	return &out, nil
}

func (f fakeSnippets) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	out := f.snapshot(s)
	return &out, nil
}

func (f fakeSnippets) filter(keep func(*model.Snippet) bool) []model.Snippet {
	var out []model.Snippet
	for _, s := range f.snippets {
		if keep(s) {
			out = append(out, f.snapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func window(all []model.Snippet, page repository.Page) []model.Snippet {
	start := min(page.Offset(), len(all))
	end := min(start+page.Size, len(all))
	return all[start:end]
}

func (f fakeSnippets) ListPublic(_ context.Context, page repository.Page) ([]model.Snippet, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.filter(func(s *model.Snippet) bool { return s.Visibility == model.VisibilityPublic })
	return window(all, page), len(all), nil
}

func (f fakeSnippets) ListByUser(_ context.Context, userID string, includePrivate bool) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.filter(func(s *model.Snippet) bool {
		return s.UserID == userID && (includePrivate || s.Visibility == model.VisibilityPublic)
	}), nil
}

func (f fakeSnippets) Search(_ context.Context, filter repository.SearchFilter, page repository.Page) ([]model.Snippet, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	term := strings.ToLower(filter.Term)
	all := f.filter(func(s *model.Snippet) bool {
		if s.Visibility != model.VisibilityPublic {
			return false
		}
		if filter.Language != "" && s.Language != filter.Language {
			return false
		}
		return strings.Contains(strings.ToLower(s.Title), term)
	})
	return window(all, page), len(all), nil
}

func (f fakeSnippets) Update(_ context.Context, id, requesterID string, patch model.SnippetPatch) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.snippets[id]
	if !ok || s.UserID != requesterID {
		return nil, apperror.NotFound("snippet", id)
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Description != nil {
		s.Description = patch.Description
	}
	if patch.Visibility != nil {
		s.Visibility = *patch.Visibility
	}
	if patch.Tags != nil {
		f.tags[id] = append([]string(nil), (*patch.Tags)...)
	}
	s.UpdatedAt = f.tick()
	out := f.snapshot(s)
	return &out, nil
}

func (f fakeSnippets) Delete(_ context.Context, id, requesterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.snippets[id]
	if !ok || s.UserID != requesterID {
		return false, nil
	}
	delete(f.snippets, id)
	delete(f.tags, id)
	return true, nil
}

func (f fakeSnippets) ListPopular(_ context.Context, limit int) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.filter(func(s *model.Snippet) bool { return s.Visibility == model.VisibilityPublic })
	sort.SliceStable(all, func(i, j int) bool { return all[i].LikeCount > all[j].LikeCount })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f fakeSnippets) TagsOf(_ context.Context, snippetID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failTags != nil {
		return nil, f.failTags
	}
	out := append([]string{}, f.tags[snippetID]...)
	sort.Strings(out)
	return out, nil
}

func (f fakeSnippets) PopularTags(_ context.Context, limit int) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[string]int)
	for _, names := range f.tags {
		for _, n := range names {
			counts[n]++
		}
	}
	out := make([]model.Tag, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.Tag{ID: name, Name: name, UsageCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ----- InteractionRepository -----

type fakeInteractions struct{ *fakeStore }

func (f fakeInteractions) Like(_ context.Context, userID, snippetID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := [2]string{userID, snippetID}
	if _, ok := f.likes[k]; ok {
		return false, nil
	}
	f.likes[k] = f.tick()
	return true, nil
}

func (f fakeInteractions) Unlike(_ context.Context, userID, snippetID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := [2]string{userID, snippetID}
	if _, ok := f.likes[k]; !ok {
		return false, nil
	}
	delete(f.likes, k)
	return true, nil
}

func (f fakeInteractions) HasLiked(_ context.Context, userID, snippetID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.likes[[2]string{userID, snippetID}]
	return ok, nil
}

func (f fakeInteractions) CountLikes(_ context.Context, snippetID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.likeCount(snippetID), nil
}

func (f fakeInteractions) ListLikers(_ context.Context, snippetID string) ([]model.Liker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []model.Liker{}
	for k := range f.likes {
		if k[1] == snippetID {
			out = append(out, model.Liker{UserID: k[0]})
		}
	}
	return out, nil
}

func (f fakeInteractions) AddComment(_ context.Context, userID, snippetID, content string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := &model.Comment{ID: f.id("comment"), UserID: userID, SnippetID: snippetID, Content: content, CreatedAt: f.tick()}
	f.comments[c.ID] = c
	out := *c
	return &out, nil
}

func (f fakeInteractions) ListComments(_ context.Context, snippetID string) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Comment
	for _, c := range f.comments {
		if c.SnippetID == snippetID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f fakeInteractions) DeleteComment(_ context.Context, commentID, requesterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.comments[commentID]
	if !ok || c.UserID != requesterID {
		return false, nil
	}
	delete(f.comments, commentID)
	return true, nil
}

func (f fakeInteractions) CountComments(ctx context.Context, snippetID string) (int, error) {
	comments, err := f.ListComments(ctx, snippetID)
	return len(comments), err
}

// ----- UserRepository -----

type fakeUsers struct {
	*fakeStore
	createErr error
}

func (f *fakeUsers) Create(_ context.Context, in model.NewUser) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, u := range f.users {
		if u.Email == in.Email || u.Username == in.Username {
			return nil, apperror.ConflictMessage("email", "an account with this email or username already exists")
		}
	}
	u := &model.UserWithPassword{
		User: model.User{
			ID: f.id("user"), Username: in.Username, Email: in.Email,
			Visibility: model.ProfilePublic, GitHubID: in.GitHubID, CreatedAt: f.tick(),
		},
		PasswordHash: in.PasswordHash,
	}
	f.users[u.ID] = u
	out := u.User
	return &out, nil
}

func (f *fakeUsers) find(match func(*model.UserWithPassword) bool) *model.UserWithPassword {
	for _, u := range f.users {
		if match(u) {
			out := *u
			return &out
		}
	}
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*model.UserWithPassword, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.find(func(u *model.UserWithPassword) bool { return u.Email == email }); u != nil {
		return u, nil
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.find(func(u *model.UserWithPassword) bool { return u.ID == id }); u != nil {
		return &u.User, nil
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUsers) FindByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u := f.find(func(u *model.UserWithPassword) bool { return u.GitHubID != nil && *u.GitHubID == githubID }); u != nil {
		return &u.User, nil
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (f *fakeUsers) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.find(func(u *model.UserWithPassword) bool { return u.Email == email }) != nil, nil
}

func (f *fakeUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.find(func(u *model.UserWithPassword) bool { return u.Username == username }) != nil, nil
}

func (f *fakeUsers) UpdateEmail(_ context.Context, id, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.find(func(u *model.UserWithPassword) bool { return u.Email == email && u.ID != id }) != nil {
		return nil, apperror.ConflictMessage("email", "email already in use")
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	u.Email = email
	out := u.User
	return &out, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) Statistics(_ context.Context, id string) (*model.UserStatistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[id]; !ok {
		return nil, apperror.NotFound("user", id)
	}
	var st model.UserStatistics
	for _, s := range f.snippets {
		if s.UserID == id {
			st.Snippets++
			st.LikesReceived += f.likeCount(s.ID)
		}
	}
	for k := range f.likes {
		if k[0] == id {
			st.LikesGiven++
		}
	}
	for _, c := range f.comments {
		if c.UserID == id {
			st.Comments++
		}
	}
	return &st, nil
}

var (
	_ repository.SnippetRepository     = fakeSnippets{}
	_ repository.InteractionRepository = fakeInteractions{}
	_ repository.UserRepository        = (*fakeUsers)(nil)
)
