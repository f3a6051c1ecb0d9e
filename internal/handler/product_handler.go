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

// ProductServiceInterface は商品ハンドラーが必要とするサービスインターフェース。
type ProductServiceInterface interface {
	List(ctx context.Context, q resource.ListQuery) (*repository.Page[model.Product], error)
	Get(ctx context.Context, id int64) (model.Product, error)
	Create(ctx context.Context, caller model.Identity, in resource.ProductInput) (model.Product, error)
	Update(ctx context.Context, caller model.Identity, id int64, in resource.ProductInput) (model.Product, error)
	Delete(ctx context.Context, caller model.Identity, id int64) (model.Product, error)
	Count(ctx context.Context) int
}

// ProductHandler は商品リソースのHTTPハンドラー。
type ProductHandler struct {
	service ProductServiceInterface
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(service ProductServiceInterface) *ProductHandler {
	return &ProductHandler{
		service: service,
	}
}

// productRequest は商品作成・更新リクエストのボディ。
type productRequest struct {
	Name     *string  `json:"name"`
	Price    *float64 `json:"price"`
	Category *string  `json:"category"`
	Stock    *int     `json:"stock"`
}

func (req productRequest) toInput() resource.ProductInput {
	return resource.ProductInput{
		Name:     req.Name,
		Price:    req.Price,
		Category: req.Category,
		Stock:    req.Stock,
	}
}

// productResponse は商品情報のAPIレスポンス。
type productResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Stock     int       `json:"stock"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProductResponse(p model.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.Stock,
		Owner:     p.Owner,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// List は商品一覧を返す。
// GET /resources/products?page=&limit=&q=
// qは商品名とカテゴリの部分一致で絞り込む。
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := resource.ParseListQuery(r.URL.Query().Get("page"), r.URL.Query().Get("limit"), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	page, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	writeData(w, http.StatusOK, toPageResponse(page, toProductResponse))
}

// Get は商品を1件返す。
// GET /resources/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	writeData(w, http.StatusOK, toProductResponse(product))
}

// Create は商品を作成する。
// POST /resources/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	product, err := h.service.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req.toInput())
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	writeData(w, http.StatusCreated, toProductResponse(product))
}

// Update は商品を部分更新する。PUTとPATCHのどちらも部分更新として扱う。
// PUT|PATCH /resources/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	product, err := h.service.Update(r.Context(), middleware.IdentityFromContext(r.Context()), id, req.toInput())
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	writeData(w, http.StatusOK, toProductResponse(product))
}

// Delete は商品を削除し、削除した商品を返す。
// DELETE /resources/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	product, err := h.service.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, "product", err)
		return
	}

	writeData(w, http.StatusOK, toProductResponse(product))
}
