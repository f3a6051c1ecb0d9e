package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/security"
)

// SeedOwner は初期データの所有者identity。
const SeedOwner = "admin"

// ProductInput は商品の作成・部分更新の入力値。
type ProductInput struct {
	Name     *string
	Price    *float64
	Category *string
	Stock    *int
}

// ProductService は商品リソースのサービス層。
type ProductService struct {
	store     repository.ProductStore
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewProductService はProductServiceの新しいインスタンスを生成する。
func NewProductService(store repository.ProductStore, sanitizer security.TextSanitizer) *ProductService {
	return &ProductService{
		store:     store,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は条件に一致する商品をID順にページ単位で返す。
// qは商品名とカテゴリに対する部分一致で評価する。
func (s *ProductService) List(ctx context.Context, q ListQuery) (*repository.Page[model.Product], error) {
	var filter func(model.Product) bool
	if q.Query != "" {
		query := strings.ToLower(q.Query)
		filter = func(p model.Product) bool {
			return matchesQuery(query, p.Name, p.Category)
		}
	}

	page, err := s.store.List(ctx, q.Page, q.Limit, filter)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	return page, nil
}

// Get は指定IDの商品を返す。
func (s *ProductService) Get(ctx context.Context, id int64) (model.Product, error) {
	return s.store.Get(ctx, id)
}

// Create は商品を作成する。作成者がOwnerになる。
func (s *ProductService) Create(ctx context.Context, caller model.Identity, in ProductInput) (model.Product, error) {
	if !caller.Authenticated {
		return model.Product{}, auth.ErrForbidden
	}

	switch {
	case in.Name == nil:
		return model.Product{}, invalid("name", "is required")
	case in.Price == nil:
		return model.Product{}, invalid("price", "is required")
	case in.Category == nil:
		return model.Product{}, invalid("category", "is required")
	}

	product := model.Product{Owner: caller.Identity}
	if err := s.apply(&product, in); err != nil {
		return model.Product{}, err
	}

	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	return s.store.Create(ctx, product), nil
}

// Update は商品を部分更新する。adminまたは所有者のみ更新できる。
func (s *ProductService) Update(ctx context.Context, caller model.Identity, id int64, in ProductInput) (model.Product, error) {
	if in == (ProductInput{}) {
		return model.Product{}, invalid("body", "at least one field is required")
	}

	return s.store.Update(ctx, id, func(p *model.Product) error {
		if err := auth.AuthorizeMutation(caller, p.Owner); err != nil {
			return err
		}
		if err := s.apply(p, in); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return nil
	})
}

// Delete は商品を削除し、削除した商品を返す。adminまたは所有者のみ削除できる。
func (s *ProductService) Delete(ctx context.Context, caller model.Identity, id int64) (model.Product, error) {
	product, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	if err := auth.AuthorizeMutation(caller, product.Owner); err != nil {
		return model.Product{}, err
	}
	return s.store.Delete(ctx, id)
}

// Count は保存されている商品数を返す。
func (s *ProductService) Count(ctx context.Context) int {
	return s.store.Count(ctx)
}

// Seed は初期データの商品を登録する。所有者はadmin。
func (s *ProductService) Seed(ctx context.Context) {
	now := s.now()
	for _, p := range []model.Product{
		{Name: "Laptop", Price: 999.99, Category: "Electronics", Stock: 10},
		{Name: "Book", Price: 19.99, Category: "Education", Stock: 50},
		{Name: "Coffee Mug", Price: 12.50, Category: "Home", Stock: 0},
	} {
		p.Owner = SeedOwner
		p.CreatedAt = now
		p.UpdatedAt = now
		s.store.Create(ctx, p)
	}
}

// apply は入力値を検証してproductに反映する。いずれかが不正な場合はproductを変更しない。
func (s *ProductService) apply(product *model.Product, in ProductInput) error {
	next := *product

	if in.Name != nil {
		name, err := cleanText(s.sanitizer, "name", *in.Name, MaxNameLength)
		if err != nil {
			return err
		}
		next.Name = name
	}
	if in.Price != nil {
		if err := validatePrice(*in.Price); err != nil {
			return err
		}
		next.Price = *in.Price
	}
	if in.Category != nil {
		category, err := cleanText(s.sanitizer, "category", *in.Category, MaxCategoryLength)
		if err != nil {
			return err
		}
		next.Category = category
	}
	if in.Stock != nil {
		if err := validateStock(*in.Stock); err != nil {
			return err
		}
		next.Stock = *in.Stock
	}

	*product = next
	return nil
}
