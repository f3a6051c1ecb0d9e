package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/middleware"
	"github.com/hitoshi/gatekeeper/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	LoginThrottle     *middleware.LoginThrottle
	IdentityResolver  *middleware.IdentityResolver

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 認証
	LoginService LoginServiceInterface

	// リソース
	UserService    UserServiceInterface
	ProductService ProductServiceInterface
}

// resourceRoutes はリソース種別ごとのCRUDハンドラー。
type resourceRoutes interface {
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS → RateLimiter → (LoginThrottle) → IdentityResolver
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// サブルーターに引き継がれるよう、ルート定義より前に設定する
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("resource"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeAPIErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
	})

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.LoginService, collector)
	userHandler := NewUserHandler(deps.UserService)
	productHandler := NewProductHandler(deps.ProductService)
	adminHandler := NewAdminHandler(deps.UserService, deps.ProductService, deps.RateLimiter)

	optional := deps.IdentityResolver.Middleware(middleware.PolicyOptional)
	required := deps.IdentityResolver.Middleware(middleware.PolicyRequired)

	// --- レート制限の対象外 ---
	r.Get("/health", Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- レート制限の対象 ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/auth", func(r chi.Router) {
			login := http.Handler(http.HandlerFunc(authHandler.Login))
			if deps.LoginThrottle != nil {
				login = deps.LoginThrottle.Middleware()(login)
			}
			r.Method(http.MethodPost, "/login", login)
			r.With(optional).Get("/me", authHandler.Me)
		})

		r.Route("/resources", func(r chi.Router) {
			r.Route("/users", func(r chi.Router) {
				mountResourceRoutes(r, userHandler, optional, required)
			})
			r.Route("/products", func(r chi.Router) {
				mountResourceRoutes(r, productHandler, optional, required)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(required)
			r.Use(middleware.RequireRole(model.RoleAdmin, collector))
			r.Get("/stats", adminHandler.Stats)
		})
	})

	return r
}

// mountResourceRoutes はリソース種別のCRUDルートを登録する。
// 参照は任意認証、変更は必須認証とし、所有者の判定はサービス層で行う。
func mountResourceRoutes(r chi.Router, h resourceRoutes, optional, required func(http.Handler) http.Handler) {
	r.With(optional).Get("/", h.List)
	r.With(optional).Get("/{id}", h.Get)
	r.With(required).Post("/", h.Create)
	r.With(required).Put("/{id}", h.Update)
	r.With(required).Patch("/{id}", h.Update)
	r.With(required).Delete("/{id}", h.Delete)
}
