package resource

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/security"
)

var (
	adminCaller = model.Identity{Identity: "root", Role: model.RoleAdmin, Authenticated: true}
	aliceCaller = model.Identity{Identity: "alice", Role: model.RoleUser, Authenticated: true}
	bobCaller   = model.Identity{Identity: "bob", Role: model.RoleUser, Authenticated: true}
)

func ptr[T any](v T) *T { return &v }

func newUserService() *UserService {
	return NewUserService(repository.NewMemoryStore[model.User](), security.NewTextSanitizer())
}

func newProductService() *ProductService {
	return NewProductService(repository.NewMemoryStore[model.Product](), security.NewTextSanitizer())
}

func validUserInput() UserInput {
	return UserInput{Name: ptr("Alice"), Email: ptr("alice@example.com"), Age: ptr(28)}
}

func assertValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != field {
		t.Errorf("field = %q, want %q", ve.Field, field)
	}
}

// --- ParseListQuery ---

func TestParseListQuery_Defaults(t *testing.T) {
	q, err := ParseListQuery("", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Page != 1 || q.Limit != DefaultPageSize || q.Query != "" {
		t.Errorf("query = %+v", q)
	}
}

func TestParseListQuery_Invalid(t *testing.T) {
	tests := []struct {
		name, page, limit, q, field string
	}{
		{"zero page", "0", "", "", "page"},
		{"negative page", "-1", "", "", "page"},
		{"non-numeric page", "abc", "", "", "page"},
		{"fractional page", "1.5", "", "", "page"},
		{"zero limit", "", "0", "", "limit"},
		{"limit above max", "", "101", "", "limit"},
		{"long query", "", "", strings.Repeat("x", MaxQueryLength+1), "q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseListQuery(tt.page, tt.limit, tt.q)
			assertValidationField(t, err, tt.field)
		})
	}
}

// --- UserService ---

func TestUserService_Create_SetsOwnerAndDefaultRole(t *testing.T) {
	svc := newUserService()

	u, err := svc.Create(context.Background(), aliceCaller, validUserInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 1 || u.Owner != "alice" || u.Role != model.RoleUser {
		t.Errorf("user = %+v", u)
	}
	if u.CreatedAt.IsZero() || !u.CreatedAt.Equal(u.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", u.CreatedAt, u.UpdatedAt)
	}
}

func TestUserService_Create_ValidationErrors(t *testing.T) {
	svc := newUserService()

	tests := []struct {
		name  string
		mod   func(*UserInput)
		field string
	}{
		{"missing name", func(in *UserInput) { in.Name = nil }, "name"},
		{"missing email", func(in *UserInput) { in.Email = nil }, "email"},
		{"missing age", func(in *UserInput) { in.Age = nil }, "age"},
		{"empty name", func(in *UserInput) { in.Name = ptr("   ") }, "name"},
		{"markup only name", func(in *UserInput) { in.Name = ptr("<b></b>") }, "name"},
		{"long name", func(in *UserInput) { in.Name = ptr(strings.Repeat("a", MaxNameLength+1)) }, "name"},
		{"bad email", func(in *UserInput) { in.Email = ptr("not-an-email") }, "email"},
		{"display name email", func(in *UserInput) { in.Email = ptr("Alice <alice@example.com>") }, "email"},
		{"negative age", func(in *UserInput) { in.Age = ptr(-1) }, "age"},
		{"age too large", func(in *UserInput) { in.Age = ptr(151) }, "age"},
		{"unknown role", func(in *UserInput) { in.Role = ptr("superuser") }, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validUserInput()
			tt.mod(&in)

			_, err := svc.Create(context.Background(), aliceCaller, in)
			assertValidationField(t, err, tt.field)
		})
	}

	if svc.Count(context.Background()) != 0 {
		t.Errorf("count = %d, want 0 after rejected creates", svc.Count(context.Background()))
	}
}

func TestUserService_Create_SanitizesName(t *testing.T) {
	svc := newUserService()
	in := validUserInput()
	in.Name = ptr("<script>alert(1)</script><b>Alice</b>")

	u, err := svc.Create(context.Background(), aliceCaller, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "Alice" {
		t.Errorf("name = %q, want %q", u.Name, "Alice")
	}
}

func TestUserService_Create_AdminRoleRequiresAdminCaller(t *testing.T) {
	svc := newUserService()
	in := validUserInput()
	in.Role = ptr("admin")

	if _, err := svc.Create(context.Background(), aliceCaller, in); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("non-admin: err = %v, want ErrForbidden", err)
	}

	u, err := svc.Create(context.Background(), adminCaller, in)
	if err != nil {
		t.Fatalf("admin: unexpected error: %v", err)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("role = %q, want admin", u.Role)
	}
}

func TestUserService_Create_AnonymousForbidden(t *testing.T) {
	svc := newUserService()

	if _, err := svc.Create(context.Background(), model.Anonymous(), validUserInput()); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestUserService_Update_OwnerAndAdminOnly(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	u, _ := svc.Create(ctx, aliceCaller, validUserInput())

	// 所有者以外の一般ユーザーは403
	if _, err := svc.Update(ctx, bobCaller, u.ID, UserInput{Age: ptr(40)}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("bob: err = %v, want ErrForbidden", err)
	}

	updated, err := svc.Update(ctx, aliceCaller, u.ID, UserInput{Age: ptr(29)})
	if err != nil {
		t.Fatalf("owner: unexpected error: %v", err)
	}
	if updated.Age != 29 || updated.Name != "Alice" {
		t.Errorf("updated = %+v", updated)
	}

	updated, err = svc.Update(ctx, adminCaller, u.ID, UserInput{Name: ptr("Alice B")})
	if err != nil {
		t.Fatalf("admin: unexpected error: %v", err)
	}
	if updated.Name != "Alice B" || updated.Owner != "alice" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestUserService_Update_InvalidFieldLeavesUserUnchanged(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	u, _ := svc.Create(ctx, aliceCaller, validUserInput())

	_, err := svc.Update(ctx, aliceCaller, u.ID, UserInput{Name: ptr("Renamed"), Age: ptr(-5)})
	assertValidationField(t, err, "age")

	got, _ := svc.Get(ctx, u.ID)
	if got.Name != "Alice" || got.Age != 28 {
		t.Errorf("user changed after rejected update: %+v", got)
	}
}

func TestUserService_Update_OwnerCannotPromoteSelf(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	u, _ := svc.Create(ctx, aliceCaller, validUserInput())

	if _, err := svc.Update(ctx, aliceCaller, u.ID, UserInput{Role: ptr("admin")}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestUserService_Update_EmptyInputAndNotFound(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()

	_, err := svc.Update(ctx, adminCaller, 1, UserInput{})
	assertValidationField(t, err, "body")

	if _, err := svc.Update(ctx, adminCaller, 99, UserInput{Age: ptr(1)}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUserService_Delete(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	u, _ := svc.Create(ctx, aliceCaller, validUserInput())

	if _, err := svc.Delete(ctx, bobCaller, u.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("bob: err = %v, want ErrForbidden", err)
	}
	if _, err := svc.Delete(ctx, model.Anonymous(), u.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("anonymous: err = %v, want ErrForbidden", err)
	}
	if svc.Count(ctx) != 1 {
		t.Fatalf("user deleted by unauthorized caller")
	}

	// adminは他人のリソースを削除できる
	deleted, err := svc.Delete(ctx, adminCaller, u.ID)
	if err != nil {
		t.Fatalf("admin: unexpected error: %v", err)
	}
	if deleted.ID != u.ID {
		t.Errorf("deleted id = %d, want %d", deleted.ID, u.ID)
	}

	if _, err := svc.Delete(ctx, adminCaller, u.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestUserService_List_SearchAndPaginate(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	svc.Seed(ctx)

	page, err := svc.List(ctx, ListQuery{Page: 1, Limit: 10, Query: "JANE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "Jane Smith" {
		t.Errorf("search result = %+v", page)
	}

	// メールアドレスも検索対象
	page, _ = svc.List(ctx, ListQuery{Page: 1, Limit: 10, Query: "bob@"})
	if page.Total != 1 {
		t.Errorf("email search total = %d, want 1", page.Total)
	}

	page, _ = svc.List(ctx, ListQuery{Page: 2, Limit: 2})
	if page.TotalPages != 2 || len(page.Items) != 1 || page.Items[0].ID != 3 {
		t.Errorf("page 2 = %+v", page)
	}
}

func TestUserService_Seed_OwnedByAdmin(t *testing.T) {
	svc := newUserService()
	ctx := context.Background()
	svc.Seed(ctx)

	if svc.Count(ctx) != 3 {
		t.Fatalf("count = %d, want 3", svc.Count(ctx))
	}
	u, _ := svc.Get(ctx, 1)
	if u.Owner != SeedOwner || u.Name != "John Doe" || u.Role != model.RoleAdmin {
		t.Errorf("seed user = %+v", u)
	}
}

// --- ProductService ---

func TestProductService_Create_Validation(t *testing.T) {
	svc := newProductService()
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ProductInput
		field string
	}{
		{"missing name", ProductInput{Price: ptr(1.0), Category: ptr("Home")}, "name"},
		{"missing price", ProductInput{Name: ptr("Mug"), Category: ptr("Home")}, "price"},
		{"missing category", ProductInput{Name: ptr("Mug"), Price: ptr(1.0)}, "category"},
		{"negative price", ProductInput{Name: ptr("Mug"), Price: ptr(-0.01), Category: ptr("Home")}, "price"},
		{"negative stock", ProductInput{Name: ptr("Mug"), Price: ptr(1.0), Category: ptr("Home"), Stock: ptr(-1)}, "stock"},
		{"long category", ProductInput{Name: ptr("Mug"), Price: ptr(1.0), Category: ptr(strings.Repeat("c", MaxCategoryLength+1))}, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, aliceCaller, tt.in)
			assertValidationField(t, err, tt.field)
		})
	}
}

func TestProductService_CreateUpdateDelete(t *testing.T) {
	svc := newProductService()
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	p, err := svc.Create(ctx, aliceCaller, ProductInput{Name: ptr("Desk"), Price: ptr(0.0), Category: ptr("Home")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Owner != "alice" || p.Stock != 0 || !p.CreatedAt.Equal(fixed) {
		t.Errorf("product = %+v", p)
	}

	if _, err := svc.Update(ctx, bobCaller, p.ID, ProductInput{Stock: ptr(3)}); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("bob update: err = %v, want ErrForbidden", err)
	}

	p, err = svc.Update(ctx, aliceCaller, p.ID, ProductInput{Stock: ptr(3)})
	if err != nil || p.Stock != 3 {
		t.Errorf("owner update: product = %+v, err = %v", p, err)
	}

	if _, err := svc.Delete(ctx, adminCaller, p.ID); err != nil {
		t.Errorf("admin delete: unexpected error: %v", err)
	}
}

func TestProductService_List_SearchesCategory(t *testing.T) {
	svc := newProductService()
	ctx := context.Background()
	svc.Seed(ctx)

	page, err := svc.List(ctx, ListQuery{Page: 1, Limit: 10, Query: "electro"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Items[0].Name != "Laptop" {
		t.Errorf("result = %+v", page)
	}
}

func TestProductService_ConcurrentCreates_UniqueIDs(t *testing.T) {
	svc := newProductService()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Create(ctx, aliceCaller, ProductInput{Name: ptr("Item"), Price: ptr(1.0), Category: ptr("Misc")})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids <- p.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("unique ids = %d, want %d", len(seen), n)
	}
}
