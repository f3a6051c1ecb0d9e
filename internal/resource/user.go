// Package resource はユーザー・商品リソースのドメインロジックを提供する。
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

// UserInput はユーザーの作成・部分更新の入力値。
// nilのフィールドは作成時は未指定、更新時は変更なしを表す。
type UserInput struct {
	Name  *string
	Email *string
	Age   *int
	Role  *string
}

// UserService はユーザーリソースのサービス層。
type UserService struct {
	store     repository.UserStore
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewUserService はUserServiceの新しいインスタンスを生成する。
func NewUserService(store repository.UserStore, sanitizer security.TextSanitizer) *UserService {
	return &UserService{
		store:     store,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は条件に一致するユーザーをID順にページ単位で返す。
// qは名前とメールアドレスに対する部分一致で評価する。
func (s *UserService) List(ctx context.Context, q ListQuery) (*repository.Page[model.User], error) {
	var filter func(model.User) bool
	if q.Query != "" {
		query := strings.ToLower(q.Query)
		filter = func(u model.User) bool {
			return matchesQuery(query, u.Name, u.Email)
		}
	}

	page, err := s.store.List(ctx, q.Page, q.Limit, filter)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return page, nil
}

// Get は指定IDのユーザーを返す。
func (s *UserService) Get(ctx context.Context, id int64) (model.User, error) {
	return s.store.Get(ctx, id)
}

// Create はユーザーを作成する。作成者がOwnerになる。
// adminロールのユーザーはadminのみ作成できる。
func (s *UserService) Create(ctx context.Context, caller model.Identity, in UserInput) (model.User, error) {
	if !caller.Authenticated {
		return model.User{}, auth.ErrForbidden
	}

	if in.Name == nil {
		return model.User{}, invalid("name", "is required")
	}
	if in.Email == nil {
		return model.User{}, invalid("email", "is required")
	}
	if in.Age == nil {
		return model.User{}, invalid("age", "is required")
	}

	user := model.User{Role: model.RoleUser, Owner: caller.Identity}
	if err := s.apply(caller, &user, in); err != nil {
		return model.User{}, err
	}

	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	return s.store.Create(ctx, user), nil
}

// Update はユーザーを部分更新する。adminまたは所有者のみ更新できる。
// 権限と入力値の検証はストアのロック内で行い、失敗した場合は何も変更しない。
func (s *UserService) Update(ctx context.Context, caller model.Identity, id int64, in UserInput) (model.User, error) {
	if in == (UserInput{}) {
		return model.User{}, invalid("body", "at least one field is required")
	}

	return s.store.Update(ctx, id, func(u *model.User) error {
		if err := auth.AuthorizeMutation(caller, u.Owner); err != nil {
			return err
		}
		if err := s.apply(caller, u, in); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		return nil
	})
}

// Delete はユーザーを削除し、削除したユーザーを返す。adminまたは所有者のみ削除できる。
// Ownerは作成後に変更されないため、取得から削除までの間に判定結果が変わることはない。
func (s *UserService) Delete(ctx context.Context, caller model.Identity, id int64) (model.User, error) {
	user, err := s.store.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if err := auth.AuthorizeMutation(caller, user.Owner); err != nil {
		return model.User{}, err
	}
	return s.store.Delete(ctx, id)
}

// Count は保存されているユーザー数を返す。
func (s *UserService) Count(ctx context.Context) int {
	return s.store.Count(ctx)
}

// Seed は初期データのユーザーを登録する。所有者はadmin。
func (s *UserService) Seed(ctx context.Context) {
	now := s.now()
	for _, u := range []model.User{
		{Name: "John Doe", Email: "john@example.com", Age: 30, Role: model.RoleAdmin},
		{Name: "Jane Smith", Email: "jane@example.com", Age: 25, Role: model.RoleUser},
		{Name: "Bob Wilson", Email: "bob@example.com", Age: 35, Role: model.RoleUser},
	} {
		u.Owner = SeedOwner
		u.CreatedAt = now
		u.UpdatedAt = now
		s.store.Create(ctx, u)
	}
}

// apply は入力値を検証してuserに反映する。いずれかが不正な場合はuserを変更しない。
func (s *UserService) apply(caller model.Identity, user *model.User, in UserInput) error {
	next := *user

	if in.Name != nil {
		name, err := cleanText(s.sanitizer, "name", *in.Name, MaxNameLength)
		if err != nil {
			return err
		}
		next.Name = name
	}
	if in.Email != nil {
		email, err := validateEmail(*in.Email)
		if err != nil {
			return err
		}
		next.Email = email
	}
	if in.Age != nil {
		if err := validateAge(*in.Age); err != nil {
			return err
		}
		next.Age = *in.Age
	}
	if in.Role != nil {
		role, err := validateRole(*in.Role)
		if err != nil {
			return err
		}
		if role == model.RoleAdmin && !caller.IsAdmin() {
			return auth.ErrForbidden
		}
		next.Role = role
	}

	*user = next
	return nil
}
