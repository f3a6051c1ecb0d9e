package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/gatekeeper/internal/middleware"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/resource"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, q resource.ListQuery) (*repository.Page[model.User], error)
	Get(ctx context.Context, id int64) (model.User, error)
	Create(ctx context.Context, caller model.Identity, in resource.UserInput) (model.User, error)
	Update(ctx context.Context, caller model.Identity, id int64, in resource.UserInput) (model.User, error)
	Delete(ctx context.Context, caller model.Identity, id int64) (model.User, error)
	Count(ctx context.Context) int
}

// UserHandler はユーザーリソースのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userRequest はユーザー作成・更新リクエストのボディ。
// 省略したフィールドは更新しない。
type userRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Age   *int    `json:"age"`
	Role  *string `json:"role"`
}

func (req userRequest) toInput() resource.UserInput {
	return resource.UserInput{
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
		Role:  req.Role,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	Role      string    `json:"role"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		Role:      string(u.Role),
		Owner:     u.Owner,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// List はユーザー一覧を返す。
// GET /resources/users?page=&limit=&q=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := resource.ParseListQuery(r.URL.Query().Get("page"), r.URL.Query().Get("limit"), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	page, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	writeData(w, http.StatusOK, toPageResponse(page, toUserResponse))
}

// Get はユーザーを1件返す。
// GET /resources/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// Create はユーザーを作成する。
// POST /resources/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req.toInput())
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	writeData(w, http.StatusCreated, toUserResponse(user))
}

// Update はユーザーを部分更新する。PUTとPATCHのどちらも部分更新として扱う。
// PUT|PATCH /resources/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	var req userRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	user, err := h.service.Update(r.Context(), middleware.IdentityFromContext(r.Context()), id, req.toInput())
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// Delete はユーザーを削除し、削除したユーザーを返す。
// DELETE /resources/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	user, err := h.service.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, "user", err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}
