package handler

import (
	"context"
	"net/http"
)

// ResourceCounter はリソース件数を返すインターフェース。
type ResourceCounter interface {
	Count(ctx context.Context) int
}

// WindowCounter は追跡中のレート制限ウィンドウ数を返すインターフェース。
type WindowCounter interface {
	WindowCount() int
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	users    ResourceCounter
	products ResourceCounter
	windows  WindowCounter
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users, products ResourceCounter, windows WindowCounter) *AdminHandler {
	return &AdminHandler{
		users:    users,
		products: products,
		windows:  windows,
	}
}

type statsResponse struct {
	Users            int `json:"users"`
	Products         int `json:"products"`
	RateLimitWindows int `json:"rate_limit_windows"`
}

// Stats はリソース件数とレート制限の状態を返す。
// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, statsResponse{
		Users:            h.users.Count(r.Context()),
		Products:         h.products.Count(r.Context()),
		RateLimitWindows: h.windows.WindowCount(),
	})
}
