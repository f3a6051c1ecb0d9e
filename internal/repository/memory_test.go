package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/gatekeeper/internal/model"
)

func seedProducts(t *testing.T, s *MemoryStore[model.Product], n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.Create(context.Background(), model.Product{Name: "p", Owner: "admin"})
	}
}

func TestMemoryStore_Create_AssignsIncreasingIDs(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	ctx := context.Background()

	first := s.Create(ctx, model.Product{Name: "Laptop"})
	second := s.Create(ctx, model.Product{Name: "Book"})

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, 2, s.Count(ctx))
}

func TestMemoryStore_Create_NeverReusesDeletedIDs(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	ctx := context.Background()

	s.Create(ctx, model.Product{Name: "a"})
	b := s.Create(ctx, model.Product{Name: "b"})
	_, err := s.Delete(ctx, b.ID)
	require.NoError(t, err)

	// 長さ+1で採番すると2が再利用されてしまう
	c := s.Create(ctx, model.Product{Name: "c"})
	assert.Equal(t, int64(3), c.ID)
}

func TestMemoryStore_Create_ConcurrentIDsAreDistinct(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	ctx := context.Background()

	const k = 500
	ids := make(chan int64, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.Create(ctx, model.Product{Name: "concurrent"}).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, k)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, k)
	assert.Equal(t, k, s.Count(ctx))
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemoryStore[model.User]()

	_, err := s.Get(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_Update_AppliesChanges(t *testing.T) {
	s := NewMemoryStore[model.User]()
	ctx := context.Background()
	u := s.Create(ctx, model.User{Name: "John", Age: 30})

	updated, err := s.Update(ctx, u.ID, func(x *model.User) error {
		x.Age = 31
		x.ID = 999 // IDは変更できない
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 31, updated.Age)
	assert.Equal(t, u.ID, updated.ID)

	got, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, got.Age)
}

func TestMemoryStore_Update_ApplyErrorLeavesEntityUnchanged(t *testing.T) {
	s := NewMemoryStore[model.User]()
	ctx := context.Background()
	u := s.Create(ctx, model.User{Name: "John", Age: 30})

	applyErr := errors.New("invalid age")
	_, err := s.Update(ctx, u.ID, func(x *model.User) error {
		x.Age = -1
		return applyErr
	})
	assert.ErrorIs(t, err, applyErr)

	got, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Age)
}

func TestMemoryStore_Update_NotFound(t *testing.T) {
	s := NewMemoryStore[model.User]()

	_, err := s.Update(context.Background(), 7, func(*model.User) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore[model.User]()
	ctx := context.Background()
	u := s.Create(ctx, model.User{Name: "Jane"})

	deleted, err := s.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", deleted.Name)

	_, err = s.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Delete(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List_FirstPageStartsAtOffsetZero(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	seedProducts(t, s, 3)

	page, err := s.List(context.Background(), 1, 2, nil)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].ID)
	assert.Equal(t, int64(2), page.Items[1].ID)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestMemoryStore_List_TotalPagesIsCeiling(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		pageSize  int
		wantPages int
	}{
		{"empty", 0, 10, 0},
		{"exact", 10, 5, 2},
		{"remainder", 11, 5, 3},
		{"single partial page", 3, 10, 1},
		{"page size one", 4, 1, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore[model.Product]()
			seedProducts(t, s, tt.total)

			page, err := s.List(context.Background(), 1, tt.pageSize, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.Equal(t, tt.total, page.Total)
		})
	}
}

func TestMemoryStore_List_LastPartialPage(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	seedProducts(t, s, 5)

	page, err := s.List(context.Background(), 3, 2, nil)
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(5), page.Items[0].ID)
}

func TestMemoryStore_List_PageBeyondEndIsEmpty(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	seedProducts(t, s, 3)

	page, err := s.List(context.Background(), 1<<40, 100, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.Equal(t, 3, page.Total)
}

func TestMemoryStore_List_InvalidPage(t *testing.T) {
	s := NewMemoryStore[model.Product]()

	_, err := s.List(context.Background(), 0, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = s.List(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestMemoryStore_List_Filter(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	ctx := context.Background()
	s.Create(ctx, model.Product{Name: "Laptop", Category: "Electronics"})
	s.Create(ctx, model.Product{Name: "Book", Category: "Education"})
	s.Create(ctx, model.Product{Name: "Laptop Stand", Category: "Electronics"})

	page, err := s.List(ctx, 1, 10, func(p model.Product) bool {
		return strings.Contains(p.Name, "Laptop")
	})
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "Laptop", page.Items[0].Name)
	assert.Equal(t, "Laptop Stand", page.Items[1].Name)
}

func TestMemoryStore_ConcurrentMixedOperations(t *testing.T) {
	s := NewMemoryStore[model.Product]()
	ctx := context.Background()
	seedProducts(t, s, 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(id int64) {
			defer wg.Done()
			_, _ = s.Update(ctx, id, func(p *model.Product) error {
				p.Stock++
				return nil
			})
		}(int64(i + 1))
		go func() {
			defer wg.Done()
			_, _ = s.List(ctx, 1, 10, nil)
		}()
		go func() {
			defer wg.Done()
			s.Create(ctx, model.Product{Name: "extra"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, s.Count(ctx))
	for i := int64(1); i <= 50; i++ {
		p, err := s.Get(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Stock)
	}
}
