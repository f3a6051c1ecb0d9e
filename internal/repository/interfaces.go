// Package repository はリソースの保持と取得のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// ErrNotFound は指定IDのエンティティが存在しない場合のエラー。
var ErrNotFound = errors.New("entity not found")

// Entity はストアで管理できるエンティティの制約。
// IDはストアが採番し、呼び出し側は指定しない。
type Entity[T any] interface {
	EntityID() int64
	WithID(id int64) T
}

// Page はページネーション済みの一覧結果。
type Page[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// Store はエンティティ種別ごとのCRUDと一覧取得のインターフェース。
type Store[T Entity[T]] interface {
	// Create はエンティティに一意なIDを採番して保存する。
	// IDは単調増加し、削除後も再利用されない。
	Create(ctx context.Context, entity T) T

	// Get は指定IDのエンティティを返す。見つからない場合はErrNotFoundを返す。
	Get(ctx context.Context, id int64) (T, error)

	// Update は指定IDのエンティティにapplyを適用して保存する。
	// applyがエラーを返した場合は何も変更しない。IDは変更できない。
	Update(ctx context.Context, id int64, apply func(*T) error) (T, error)

	// Delete は指定IDのエンティティを削除し、削除したエンティティを返す。
	Delete(ctx context.Context, id int64) (T, error)

	// List はfilterに一致するエンティティをID順にページ単位で返す。
	// pageは1始まり。filterがnilの場合は全件を対象とする。
	List(ctx context.Context, page, pageSize int, filter func(T) bool) (*Page[T], error)

	// Count は保存されているエンティティ数を返す。
	Count(ctx context.Context) int
}

// UserStore はユーザーリソースのストア。
type UserStore = Store[model.User]

// ProductStore は商品リソースのストア。
type ProductStore = Store[model.Product]
