package sqldb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
)

func strPtr(s string) *string { return &s }

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")

	snippet, err := NewSnippetStore(db).Create(context.Background(), owner.ID, model.NewSnippet{
		Title:       "Quick sort",
		Language:    "python",
		Code:        "def qs(): pass",
		Description: strPtr("divide and conquer"),
		Visibility:  model.VisibilityPublic,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.ID == "" {
		t.Error("Create() did not set ID")
	}
	if snippet.UserID != owner.ID {
		t.Errorf("UserID = %q, want %q", snippet.UserID, owner.ID)
	}
	if snippet.CreatedAt.IsZero() || snippet.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
}

func TestCreate_UnknownOwnerIsUnauthorized(t *testing.T) {
	db := newTestDB(t)

	_, err := NewSnippetStore(db).Create(context.Background(), "deleted-user", model.NewSnippet{
		Title: "orphan", Language: "go", Code: "x", Visibility: model.VisibilityPublic, Tags: []string{"go"},
	})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Create() error = %v, want ErrUnauthorized", err)
	}

	tags, err := NewSnippetStore(db).PopularTags(context.Background(), 10)
	if err != nil {
		t.Fatalf("PopularTags() error = %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("PopularTags() = %v, want none after the rolled back insert", tags)
	}
}

func TestCreate_VerifyPersistence(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	original := createTestSnippet(t, db, owner.ID, "persist me", model.VisibilityUnlisted)

	found, err := store.GetByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Title != "persist me" {
		t.Errorf("Title = %q, want %q", found.Title, "persist me")
	}
	if found.Visibility != model.VisibilityUnlisted {
		t.Errorf("Visibility = %q, want %q", found.Visibility, model.VisibilityUnlisted)
	}
	if found.Description != nil {
		t.Errorf("Description = %q, want nil", *found.Description)
	}
	if found.LikeCount != 0 {
		t.Errorf("LikeCount = %d, want 0", found.LikeCount)
	}
}

func TestCreate_RejectsMalformedRows(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	valid := model.NewSnippet{Title: "abc", Language: "go", Code: "x", Visibility: model.VisibilityPublic}

	tests := []struct {
		name      string
		mutate    func(*model.NewSnippet)
		wantField string
	}{
		{"title too short", func(in *model.NewSnippet) { in.Title = "ab" }, "title"},
		{"blank title", func(in *model.NewSnippet) { in.Title = "     " }, "title"},
		{"empty language", func(in *model.NewSnippet) { in.Language = "" }, "language"},
		{"empty code", func(in *model.NewSnippet) { in.Code = "  " }, "code"},
		{"unknown visibility", func(in *model.NewSnippet) { in.Visibility = "secret" }, "visibility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			_, err := store.Create(context.Background(), owner.ID, in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}

	if got := countRows(t, db, "snippets"); got != 0 {
		t.Errorf("snippets stored = %d, want 0", got)
	}
}

// =========================================================================
// TAG BOOKKEEPING TESTS
// =========================================================================

func TestCreate_AttachesTags(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	snippet := createTestSnippet(t, db, owner.ID, "tagged", model.VisibilityPublic, "sorting", "python", "algo")

	tags, err := store.TagsOf(context.Background(), snippet.ID)
	if err != nil {
		t.Fatalf("TagsOf() error = %v", err)
	}
	sort.Strings(tags)
	want := []string{"algo", "python", "sorting"}
	if fmt.Sprint(tags) != fmt.Sprint(want) {
		t.Errorf("TagsOf() = %v, want %v", tags, want)
	}

	for _, name := range want {
		if got := tagUsage(t, db, name); got != 1 {
			t.Errorf("usage(%s) = %d, want 1", name, got)
		}
	}
}

func TestCreate_TruncatesToFiveTags(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	snippet := createTestSnippet(t, db, owner.ID, "many tags", model.VisibilityPublic,
		"a", "b", "c", "d", "e", "f", "g")

	tags, err := store.TagsOf(context.Background(), snippet.ID)
	if err != nil {
		t.Fatalf("TagsOf() error = %v", err)
	}
	if len(tags) != 5 {
		t.Fatalf("len(TagsOf()) = %d, want 5", len(tags))
	}
	if got := tagUsage(t, db, "f"); got != -1 {
		t.Errorf("tag f should not exist, usage = %d", got)
	}
}

func TestTags_CaseInsensitiveDedup(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")

	createTestSnippet(t, db, owner.ID, "first", model.VisibilityPublic, "Python")
	createTestSnippet(t, db, owner.ID, "second", model.VisibilityPublic, "  python ")

	if got := tagUsage(t, db, "python"); got != 2 {
		t.Errorf("usage(python) = %d, want 2", got)
	}
	if got := countRows(t, db, "tags"); got != 1 {
		t.Errorf("tag rows = %d, want 1", got)
	}
}

func TestTags_DuplicateInOneRequestCountsOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	snippet := createTestSnippet(t, db, owner.ID, "dupes", model.VisibilityPublic, "go", "GO", "", "Go")

	tags, err := store.TagsOf(context.Background(), snippet.ID)
	if err != nil {
		t.Fatalf("TagsOf() error = %v", err)
	}
	if len(tags) != 1 || tags[0] != "go" {
		t.Errorf("TagsOf() = %v, want [go]", tags)
	}
	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, want 1", got)
	}
}

func TestAttachTags_ExistingLinkIsNoop(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "linked", model.VisibilityPublic, "go")

	if err := attachTags(context.Background(), db.conn, snippet.ID, []string{"go"}); err != nil {
		t.Fatalf("attachTags() error = %v", err)
	}
	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, want 1", got)
	}
}

func TestDelete_DecrementsTagUsage(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	keep := createTestSnippet(t, db, owner.ID, "keep", model.VisibilityPublic, "go", "web")
	drop := createTestSnippet(t, db, owner.ID, "drop", model.VisibilityPublic, "go", "cli")

	removed, err := store.Delete(context.Background(), drop.ID, owner.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !removed {
		t.Fatal("Delete() = false, want true")
	}

	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, want 1", got)
	}
	if got := tagUsage(t, db, "cli"); got != 0 {
		t.Errorf("usage(cli) = %d, want 0 (row kept)", got)
	}
	if got := tagUsage(t, db, "web"); got != 1 {
		t.Errorf("usage(web) = %d, want 1", got)
	}

	if _, err := store.GetByID(context.Background(), keep.ID); err != nil {
		t.Errorf("unrelated snippet should survive: %v", err)
	}
}

func TestDetachTags_NeverBelowZero(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "zero", model.VisibilityPublic, "go")

	// Simulate a drifted counter.
	if _, err := db.conn.Exec(`UPDATE tags SET usage_count = 0 WHERE name = 'go'`); err != nil {
		t.Fatal(err)
	}
	if err := detachTags(context.Background(), db.conn, snippet.ID); err != nil {
		t.Fatalf("detachTags() error = %v", err)
	}
	if got := tagUsage(t, db, "go"); got != 0 {
		t.Errorf("usage(go) = %d, want 0", got)
	}
}

func TestPopularTags(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	createTestSnippet(t, db, owner.ID, "one", model.VisibilityPublic, "go", "sql")
	createTestSnippet(t, db, owner.ID, "two", model.VisibilityPublic, "go")
	gone := createTestSnippet(t, db, owner.ID, "three", model.VisibilityPublic, "rust")
	if _, err := store.Delete(context.Background(), gone.ID, owner.ID); err != nil {
		t.Fatal(err)
	}

	tags, err := store.PopularTags(context.Background(), 10)
	if err != nil {
		t.Fatalf("PopularTags() error = %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("len(PopularTags()) = %d, want 2 (unused tags hidden)", len(tags))
	}
	if tags[0].Name != "go" || tags[0].UsageCount != 2 {
		t.Errorf("first tag = %+v, want go/2", tags[0])
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := NewSnippetStore(db).GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByID_LikeCount(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	snippet := createTestSnippet(t, db, owner.ID, "liked", model.VisibilityPublic)

	likes := NewInteractionStore(db)
	for _, u := range []*model.User{bob, carol} {
		if _, err := likes.Like(context.Background(), u.ID, snippet.ID); err != nil {
			t.Fatal(err)
		}
	}

	found, err := NewSnippetStore(db).GetByID(context.Background(), snippet.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.LikeCount != 2 {
		t.Errorf("LikeCount = %d, want 2", found.LikeCount)
	}
}

// =========================================================================
// LIST / SEARCH TESTS
// =========================================================================

func TestListPublic_Pagination(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	// created[i] is the i-th oldest; rank 1 is the newest.
	created := make([]*model.Snippet, 12)
	for i := range created {
		created[i] = createTestSnippet(t, db, owner.ID, fmt.Sprintf("snippet %02d", i), model.VisibilityPublic)
	}

	page := repository.Page{Number: 2, Size: 5}
	got, total, err := store.ListPublic(context.Background(), page)
	if err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}

	if total != 12 {
		t.Errorf("total = %d, want 12", total)
	}
	if tp := page.Normalize().TotalPages(total); tp != 3 {
		t.Errorf("TotalPages = %d, want 3", tp)
	}
	if len(got) != 5 {
		t.Fatalf("len(page) = %d, want 5", len(got))
	}

	// Ranks 6..10 newest-first are created[6]..created[2].
	for i, s := range got {
		want := created[11-5-i]
		if s.ID != want.ID {
			t.Errorf("page[%d] = %q, want %q", i, s.Title, want.Title)
		}
	}
}

func TestListPublic_DefaultsAndBounds(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	for i := 0; i < 14; i++ {
		createTestSnippet(t, db, owner.ID, fmt.Sprintf("snippet %02d", i), model.VisibilityPublic)
	}

	got, total, err := store.ListPublic(context.Background(), repository.Page{Number: -3})
	if err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}
	if total != 14 {
		t.Errorf("total = %d, want 14", total)
	}
	if len(got) != repository.DefaultPageSize {
		t.Errorf("len = %d, want default page size %d", len(got), repository.DefaultPageSize)
	}

	got, _, err = store.ListPublic(context.Background(), repository.Page{Number: 99, Size: 5})
	if err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("page past the end returned %d rows, want 0", len(got))
	}
}

func TestListPublic_ExcludesPrivateAndUnlisted(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")

	pub := createTestSnippet(t, db, owner.ID, "public one", model.VisibilityPublic)
	createTestSnippet(t, db, owner.ID, "private one", model.VisibilityPrivate)
	createTestSnippet(t, db, owner.ID, "unlisted one", model.VisibilityUnlisted)

	got, total, err := store.ListPublic(context.Background(), repository.Page{Number: 1})
	if err != nil {
		t.Fatalf("ListPublic() error = %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].ID != pub.ID {
		t.Errorf("ListPublic() = %d rows (total %d), want only %q", len(got), total, pub.Title)
	}
}

func TestSearch(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	ctx := context.Background()

	mk := func(title, lang string, desc *string, vis model.Visibility) {
		t.Helper()
		_, err := store.Create(ctx, owner.ID, model.NewSnippet{
			Title: title, Language: lang, Code: "x", Description: desc, Visibility: vis,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	mk("Quick Sort", "python", nil, model.VisibilityPublic)
	mk("Merge helpers", "go", strPtr("a stable SORT"), model.VisibilityPublic)
	mk("Bubble sort", "go", nil, model.VisibilityPrivate)
	mk("Heap sort", "go", nil, model.VisibilityUnlisted)
	mk("HTTP server", "go", nil, model.VisibilityPublic)
	mk("100% coverage", "go", nil, model.VisibilityPublic)

	tests := []struct {
		name   string
		filter repository.SearchFilter
		want   int
	}{
		{"term in title or description, any case", repository.SearchFilter{Term: "sort"}, 2},
		{"term and language", repository.SearchFilter{Term: "sort", Language: "go"}, 1},
		{"language only", repository.SearchFilter{Language: "go"}, 3},
		{"empty term matches all public", repository.SearchFilter{}, 4},
		{"wildcards are literal", repository.SearchFilter{Term: "%"}, 1},
		{"no match", repository.SearchFilter{Term: "kotlin"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := store.Search(ctx, tt.filter, repository.Page{Number: 1})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if total != tt.want || len(got) != tt.want {
				t.Errorf("Search(%+v) = %d rows (total %d), want %d", tt.filter, len(got), total, tt.want)
			}
			for _, s := range got {
				if s.Visibility != model.VisibilityPublic {
					t.Errorf("Search returned non-public snippet %q", s.Title)
				}
			}
		})
	}
}

func TestSearch_FoldsNonASCIICase(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "alice")
	createTestSnippet(t, db, owner.ID, "Écrire un tri", model.VisibilityPublic)
	createTestSnippet(t, db, owner.ID, "Über sort", model.VisibilityPublic)

	store := NewSnippetStore(db)
	if _, err := store.Create(context.Background(), owner.ID, model.NewSnippet{
		Title: "Parser", Language: "go", Code: "x", Description: strPtr("Analyse ÉTAPE par étape"),
		Visibility: model.VisibilityPublic,
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		term string
		want string
	}{
		{"écrire", "Écrire un tri"},
		{"ÉCRIRE", "Écrire un tri"},
		{"Écrire", "Écrire un tri"},
		{"über", "Über sort"},
		{"ÜBER", "Über sort"},
		{"Über", "Über sort"},
		{"étape par", "Parser"},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, total, err := store.Search(context.Background(), repository.SearchFilter{Term: tt.term}, repository.Page{Number: 1})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if total != 1 || len(got) != 1 {
				t.Fatalf("Search(%q) = %d rows (total %d), want 1", tt.term, len(got), total)
			}
			if got[0].Title != tt.want {
				t.Errorf("Search(%q) = %q, want %q", tt.term, got[0].Title, tt.want)
			}
		})
	}
}

func TestListByUser(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	createTestSnippet(t, db, alice.ID, "alice public", model.VisibilityPublic)
	createTestSnippet(t, db, alice.ID, "alice private", model.VisibilityPrivate)
	createTestSnippet(t, db, alice.ID, "alice unlisted", model.VisibilityUnlisted)
	createTestSnippet(t, db, bob.ID, "bob public", model.VisibilityPublic)

	public, err := store.ListByUser(context.Background(), alice.ID, false)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(public) != 1 {
		t.Errorf("ListByUser(includePrivate=false) = %d rows, want 1", len(public))
	}

	all, err := store.ListByUser(context.Background(), alice.ID, true)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListByUser(includePrivate=true) = %d rows, want 3", len(all))
	}
	if all[0].Title != "alice unlisted" {
		t.Errorf("first = %q, want newest %q", all[0].Title, "alice unlisted")
	}
}

func TestListPopular(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	likes := NewInteractionStore(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	older := createTestSnippet(t, db, alice.ID, "older one", model.VisibilityPublic)
	newer := createTestSnippet(t, db, alice.ID, "newer one", model.VisibilityPublic)
	top := createTestSnippet(t, db, alice.ID, "top one", model.VisibilityPublic)
	hidden := createTestSnippet(t, db, alice.ID, "hidden one", model.VisibilityPrivate)

	for _, u := range []*model.User{bob, carol} {
		likes.Like(ctx, u.ID, top.ID)
		likes.Like(ctx, u.ID, hidden.ID)
	}

	got, err := store.ListPopular(ctx, 0)
	if err != nil {
		t.Fatalf("ListPopular() error = %v", err)
	}

	want := []string{top.ID, newer.ID, older.ID}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("popular[%d] = %q, want %q", i, got[i].Title, []string{"top", "newer", "older"}[i])
		}
	}
	if got[0].LikeCount != 2 {
		t.Errorf("top LikeCount = %d, want 2", got[0].LikeCount)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_DescriptionOnly(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	original := createTestSnippet(t, db, owner.ID, "Original", model.VisibilityUnlisted, "go", "web")

	updated, err := store.Update(context.Background(), original.ID, owner.ID,
		model.SnippetPatch{Description: strPtr("x")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Description == nil || *updated.Description != "x" {
		t.Errorf("Description = %v, want x", updated.Description)
	}
	if updated.Title != original.Title || updated.Language != original.Language ||
		updated.Code != original.Code || updated.Visibility != original.Visibility {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(original.UpdatedAt) && !updated.UpdatedAt.Equal(original.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards")
	}

	tags, _ := store.TagsOf(context.Background(), original.ID)
	if len(tags) != 2 {
		t.Errorf("tags = %v, want unchanged [go web]", tags)
	}
	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, want 1", got)
	}
}

func TestUpdate_ReplacesTags(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "retag", model.VisibilityPublic, "go", "web")

	newTags := []string{"go", "CLI"}
	if _, err := store.Update(context.Background(), snippet.ID, owner.ID, model.SnippetPatch{Tags: &newTags}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tags, _ := store.TagsOf(context.Background(), snippet.ID)
	if fmt.Sprint(tags) != "[cli go]" {
		t.Errorf("tags = %v, want [cli go]", tags)
	}
	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, want 1", got)
	}
	if got := tagUsage(t, db, "web"); got != 0 {
		t.Errorf("usage(web) = %d, want 0", got)
	}
	if got := tagUsage(t, db, "cli"); got != 1 {
		t.Errorf("usage(cli) = %d, want 1", got)
	}
}

func TestUpdate_EmptyTagsClearsAll(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "untag", model.VisibilityPublic, "go")

	empty := []string{}
	if _, err := store.Update(context.Background(), snippet.ID, owner.ID, model.SnippetPatch{Tags: &empty}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	tags, _ := store.TagsOf(context.Background(), snippet.ID)
	if len(tags) != 0 {
		t.Errorf("tags = %v, want none", tags)
	}
	if got := tagUsage(t, db, "go"); got != 0 {
		t.Errorf("usage(go) = %d, want 0", got)
	}
}

func TestUpdate_NotOwnerOrMissing(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	snippet := createTestSnippet(t, db, alice.ID, "mine", model.VisibilityPublic)

	patch := model.SnippetPatch{Title: strPtr("stolen")}

	if _, err := store.Update(context.Background(), snippet.ID, bob.ID, patch); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() by non-owner error = %v, want ErrNotFound", err)
	}
	if _, err := store.Update(context.Background(), "missing", alice.ID, patch); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() on missing id error = %v, want ErrNotFound", err)
	}

	found, _ := store.GetByID(context.Background(), snippet.ID)
	if found.Title != "mine" {
		t.Errorf("Title = %q, non-owner update must not apply", found.Title)
	}
}

func TestUpdate_EmptyPatchReturnsCurrent(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "as is", model.VisibilityPublic)

	got, err := store.Update(context.Background(), snippet.ID, owner.ID, model.SnippetPatch{})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != "as is" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestUpdate_ValidatesPresentFields(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	owner := createTestUser(t, db, "alice")
	snippet := createTestSnippet(t, db, owner.ID, "valid", model.VisibilityPublic)

	bad := model.Visibility("everyone")
	_, err := store.Update(context.Background(), snippet.ID, owner.ID, model.SnippetPatch{Visibility: &bad})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete_NotOwner(t *testing.T) {
	db := newTestDB(t)
	store := NewSnippetStore(db)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	snippet := createTestSnippet(t, db, alice.ID, "keep out", model.VisibilityPublic, "go")

	removed, err := store.Delete(context.Background(), snippet.ID, bob.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed {
		t.Error("Delete() by non-owner = true, want false")
	}
	if got := tagUsage(t, db, "go"); got != 1 {
		t.Errorf("usage(go) = %d, non-owner delete must not touch tags", got)
	}
}

func TestDelete_Missing(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")

	removed, err := NewSnippetStore(db).Delete(context.Background(), "missing", alice.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if removed {
		t.Error("Delete() on missing id = true, want false")
	}
}

func TestDelete_CascadesInteractions(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	snippet := createTestSnippet(t, db, alice.ID, "busy", model.VisibilityPublic)

	interactions := NewInteractionStore(db)
	interactions.Like(context.Background(), bob.ID, snippet.ID)
	interactions.AddComment(context.Background(), bob.ID, snippet.ID, "nice")

	if _, err := NewSnippetStore(db).Delete(context.Background(), snippet.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	if got := countRows(t, db, "likes"); got != 0 {
		t.Errorf("likes = %d, want 0", got)
	}
	if got := countRows(t, db, "comments"); got != 0 {
		t.Errorf("comments = %d, want 0", got)
	}
}
