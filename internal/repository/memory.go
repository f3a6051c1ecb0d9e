package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// ErrInvalidPage はページ番号またはページサイズが1未満の場合のエラー。
var ErrInvalidPage = errors.New("page and page size must be positive")

// MemoryStore はプロセス内メモリでエンティティを保持するStore実装。
// 複数のリクエストgoroutineから同時に呼び出されることを前提とする。
type MemoryStore[T Entity[T]] struct {
	// nextID は最後に採番したID。コレクションの長さからは導出しない。
	nextID atomic.Int64

	mu       sync.RWMutex
	entities map[int64]T
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore[T Entity[T]]() *MemoryStore[T] {
	return &MemoryStore[T]{
		entities: make(map[int64]T),
	}
}

// Create はエンティティに一意なIDを採番して保存する。
func (s *MemoryStore[T]) Create(_ context.Context, entity T) T {
	id := s.nextID.Add(1)
	stored := entity.WithID(id)

	s.mu.Lock()
	s.entities[id] = stored
	s.mu.Unlock()

	return stored
}

// Get は指定IDのエンティティを返す。
func (s *MemoryStore[T]) Get(_ context.Context, id int64) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return entity, nil
}

// Update は指定IDのエンティティのコピーにapplyを適用し、成功した場合のみ保存する。
func (s *MemoryStore[T]) Update(_ context.Context, id int64, apply func(*T) error) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	current, ok := s.entities[id]
	if !ok {
		return zero, fmt.Errorf("update %d: %w", id, ErrNotFound)
	}

	updated := current
	if err := apply(&updated); err != nil {
		return zero, err
	}
	updated = updated.WithID(id)
	s.entities[id] = updated

	return updated, nil
}

// Delete は指定IDのエンティティを削除する。
func (s *MemoryStore[T]) Delete(_ context.Context, id int64) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("delete %d: %w", id, ErrNotFound)
	}
	delete(s.entities, id)

	return entity, nil
}

// List はfilterに一致するエンティティをID昇順でページ単位に返す。
// offset = (page-1)*pageSize、totalPages = ceil(total/pageSize)。
func (s *MemoryStore[T]) List(_ context.Context, page, pageSize int, filter func(T) bool) (*Page[T], error) {
	if page < 1 || pageSize < 1 {
		return nil, ErrInvalidPage
	}

	s.mu.RLock()
	matched := make([]T, 0, len(s.entities))
	for _, id := range slices.Sorted(maps.Keys(s.entities)) {
		entity := s.entities[id]
		if filter == nil || filter(entity) {
			matched = append(matched, entity)
		}
	}
	s.mu.RUnlock()

	total := len(matched)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	result := &Page[T]{
		Items:      []T{},
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}

	// 範囲外のページはoffsetを計算する前に判定する（巨大なpageでのオーバーフロー防止）
	if page > result.TotalPages {
		return result, nil
	}
	offset := (page - 1) * pageSize
	end := min(offset+pageSize, total)
	result.Items = matched[offset:end]

	return result, nil
}

// Count は保存されているエンティティ数を返す。
func (s *MemoryStore[T]) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// --- compile-time interface checks ---

var _ UserStore = (*MemoryStore[model.User])(nil)
var _ ProductStore = (*MemoryStore[model.Product])(nil)
