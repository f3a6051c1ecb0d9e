package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/gatekeeper/internal/metrics"
)

// LoginThrottleConfig はログイン試行の流量制限の設定。
type LoginThrottleConfig struct {
	PerMinute       int           // 1分あたりに補充される試行回数
	Burst           int           // 連続して許可する試行回数
	CleanupInterval time.Duration // 未使用エントリのクリーンアップ間隔
}

// DefaultLoginThrottleConfig はデフォルトの設定を返す。
func DefaultLoginThrottleConfig() LoginThrottleConfig {
	return LoginThrottleConfig{
		PerMinute:       5,
		Burst:           5,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのトークンバケットとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LoginThrottle はクライアントキーごとにログイン試行をトークンバケットで制限する。
// 全体のレート制限とは独立に動作し、パスワード総当たりを遅らせる。
type LoginThrottle struct {
	config   LoginThrottleConfig
	keys     ClientKeyResolver
	recorder RateLimitRecorder

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLoginThrottle は新しいLoginThrottleを生成する。
// バックグラウンドで未使用エントリのクリーンアップを開始する。
func NewLoginThrottle(config LoginThrottleConfig, keys ClientKeyResolver, recorder RateLimitRecorder) *LoginThrottle {
	if recorder == nil {
		recorder = metrics.NopCollector{}
	}

	lt := &LoginThrottle{
		config:   config,
		keys:     keys,
		recorder: recorder,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go lt.cleanupLoop()

	return lt
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (lt *LoginThrottle) Stop() {
	lt.stopOnce.Do(func() { close(lt.stopCh) })
}

// Allow はkeyのログイン試行を1件許可するか判定する。
func (lt *LoginThrottle) Allow(key string) bool {
	allowed := lt.getOrCreateLimiter(key).Allow()
	lt.recorder.RecordRateLimitDecision("login", allowed)
	return allowed
}

// Middleware はログインエンドポイント用の流量制限ミドルウェアを返す。
func (lt *LoginThrottle) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := lt.keys.ClientKey(r)

			if !lt.Allow(key) {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client_key", key),
					slog.String("limit_type", "login"),
				)
				writeRateLimitResponse(w, lt.refillInterval())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理しているエントリ数を返す。
// テスト用。
func (lt *LoginThrottle) LimiterCount() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.limiters)
}

// refillInterval は1試行分が補充されるまでの時間。
func (lt *LoginThrottle) refillInterval() time.Duration {
	if lt.config.PerMinute <= 0 {
		return time.Minute
	}
	return time.Minute / time.Duration(lt.config.PerMinute)
}

// getOrCreateLimiter はクライアントのリミッターを取得または作成する。
func (lt *LoginThrottle) getOrCreateLimiter(key string) *rate.Limiter {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if cl, exists := lt.limiters[key]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rate.Every(lt.refillInterval()), lt.config.Burst)
	lt.limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで未使用エントリを定期的にクリーンアップする。
func (lt *LoginThrottle) cleanupLoop() {
	if lt.config.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(lt.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lt.cleanup(time.Now())
		case <-lt.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (lt *LoginThrottle) cleanup(now time.Time) {
	ttl := lt.config.CleanupInterval * 2

	lt.mu.Lock()
	defer lt.mu.Unlock()

	for key, cl := range lt.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(lt.limiters, key)
		}
	}
}
