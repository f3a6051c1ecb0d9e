// Package app は設定の読み込みと依存関係のワイヤリングを行い、サブコマンドを実行する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/config"
	"github.com/hitoshi/gatekeeper/internal/handler"
	"github.com/hitoshi/gatekeeper/internal/logger"
	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/middleware"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/resource"
	"github.com/hitoshi/gatekeeper/internal/security"
)

// envFile はInitが読み込む任意の環境変数ファイル。
const envFile = ".env"

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// .envの値は既に設定されている環境変数を上書きしない。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envの読み込み
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたレベルでログを再初期化する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Int("rate_limit_requests", cfg.RateLimitRequests),
		slog.Duration("rate_limit_window", cfg.RateLimitWindow),
		slog.Bool("trust_proxy_headers", cfg.TrustProxyHeaders),
		slog.Int("trusted_proxies", len(cfg.TrustedProxies)),
		slog.Int("credentials", len(cfg.Credentials)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg)
}

// Server はワイヤリング済みのHTTPハンドラーとバックグラウンド処理を保持する。
type Server struct {
	Handler       http.Handler
	rateLimiter   *middleware.RateLimiter
	loginThrottle *middleware.LoginThrottle
}

// Close はレート制限のクリーンアップgoroutineを停止する。
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.loginThrottle.Stop()
}

// NewServer は設定から全依存関係をワイヤリングしたServerを生成する。
// regにはアプリケーションのメトリクスを登録する。
func NewServer(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	// 1. 認証サービスの初期化
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: []byte(cfg.TokenSigningKey),
		TTL:        cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	credentials, err := auth.NewCredentialStore(cfg.Credentials, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	// 2. メトリクスの初期化
	collector := metrics.NewCollector(reg)

	// 3. リソースサービスの初期化
	sanitizer := security.NewTextSanitizer()
	userService := resource.NewUserService(repository.NewMemoryStore[model.User](), sanitizer)
	productService := resource.NewProductService(repository.NewMemoryStore[model.Product](), sanitizer)

	if cfg.SeedData {
		ctx := context.Background()
		userService.Seed(ctx)
		productService.Seed(ctx)
		log.Info("seed data loaded",
			slog.Int("users", userService.Count(ctx)),
			slog.Int("products", productService.Count(ctx)),
		)
	}

	// 4. レート制限の初期化
	keys := middleware.ClientKeyResolver{
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		ProxyHeader:       cfg.ProxyHeader,
		TrustedProxies:    cfg.TrustedProxies,
	}
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Limit:           cfg.RateLimitRequests,
		Window:          cfg.RateLimitWindow,
		CleanupInterval: cfg.RateLimitCleanupInterval,
	}, keys, collector)
	loginThrottle := middleware.NewLoginThrottle(middleware.LoginThrottleConfig{
		PerMinute:       cfg.LoginRatePerMinute,
		Burst:           cfg.LoginBurst,
		CleanupInterval: cfg.RateLimitCleanupInterval,
	}, keys, collector)

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		LoginThrottle:     loginThrottle,
		IdentityResolver:  middleware.NewIdentityResolver(tokens, collector),

		Metrics:         collector,
		MetricsGatherer: reg,

		LoginService: auth.NewService(credentials, tokens),

		UserService:    userService,
		ProductService: productService,
	})

	return &Server{
		Handler:       router,
		rateLimiter:   rateLimiter,
		loginThrottle: loginThrottle,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := NewServer(cfg, slog.Default(), reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	server := &http.Server{
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serve(ctx, server, ln, cfg.ShutdownTimeout)
}

// serve はlnでHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
func serve(ctx context.Context, server *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", ln.Addr().String()),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
