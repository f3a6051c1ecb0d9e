package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Limit           int           // ウィンドウあたりの許可リクエスト数
	Window          time.Duration // ウィンドウの長さ
	CleanupInterval time.Duration // 期限切れウィンドウのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// クライアントごとに60秒あたり10リクエスト。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Limit:           10,
		Window:          60 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitRecorder はレート制限の判定を記録するインターフェース。
type RateLimitRecorder interface {
	RecordRateLimitDecision(limiter string, allowed bool)
	SetActiveWindows(n int)
}

// Verdict はAdmitの判定結果。
type Verdict struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// window はクライアントキーごとの固定長ウィンドウ。
// count、start、endはmuで保護し、読み取りから更新までを1つの臨界区間で行う。
type window struct {
	mu      sync.Mutex
	count   int
	start   time.Time
	end     time.Time
	evicted bool // クリーンアップでマップから外された
}

// RateLimiter はクライアントキーごとの固定長ウィンドウでリクエスト数を制限する。
// 拒否されたリクエストはカウントを消費しない。許可済みのカウントは後続の失敗でも戻さない。
type RateLimiter struct {
	config   RateLimiterConfig
	keys     ClientKeyResolver
	recorder RateLimitRecorder
	now      func() time.Time

	mu      sync.RWMutex
	windows map[string]*window

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れウィンドウのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, keys ClientKeyResolver, recorder RateLimitRecorder) *RateLimiter {
	if recorder == nil {
		recorder = metrics.NopCollector{}
	}

	rl := &RateLimiter{
		config:   config,
		keys:     keys,
		recorder: recorder,
		now:      time.Now,
		windows:  make(map[string]*window),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Admit はkeyのリクエストを1件許可するか判定する。
// now >= windowEndの場合はウィンドウをnowから開始し直してから判定する。
// 同一キーへの同時呼び出しは直列化され、許可数がLimitを超えることはない。
func (rl *RateLimiter) Admit(key string, now time.Time) Verdict {
	for {
		w := rl.getOrCreateWindow(key, now)

		w.mu.Lock()
		if w.evicted {
			// クリーンアップと競合した。新しいウィンドウを取り直す
			w.mu.Unlock()
			continue
		}

		if !now.Before(w.end) {
			w.count = 0
			w.start = now
			w.end = now.Add(rl.config.Window)
		}

		allowed := w.count < rl.config.Limit
		if allowed {
			w.count++
		}

		v := Verdict{
			Allowed:   allowed,
			Limit:     rl.config.Limit,
			Remaining: rl.config.Limit - w.count,
			ResetAt:   w.end,
		}
		w.mu.Unlock()

		rl.recorder.RecordRateLimitDecision("window", allowed)
		return v
	}
}

// Middleware はクライアントキー単位のレート制限ミドルウェアを返す。
// 認証より前に配置し、トークンの有無に関わらず全リクエストをカウントする。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keys.ClientKey(r)
			now := rl.now()
			v := rl.Admit(key, now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(v.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(v.ResetAt.Unix(), 10))

			if !v.Allowed {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client_key", key),
					slog.String("limit_type", "window"),
				)
				writeRateLimitResponse(w, v.ResetAt.Sub(now))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WindowCount は現在保持しているウィンドウ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) WindowCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.windows)
}

// getOrCreateWindow はキーのウィンドウを取得または作成する。
func (rl *RateLimiter) getOrCreateWindow(key string, now time.Time) *window {
	rl.mu.RLock()
	w, exists := rl.windows[key]
	rl.mu.RUnlock()

	if exists {
		return w
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if w, exists := rl.windows[key]; exists {
		return w
	}

	w = &window{
		start: now,
		end:   now.Add(rl.config.Window),
	}
	rl.windows[key] = w
	rl.recorder.SetActiveWindows(len(rl.windows))

	return w
}

// cleanupLoop はバックグラウンドで期限切れウィンドウを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	if rl.config.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は now >= windowEnd のウィンドウを削除する。
// 削除済みウィンドウは次のAdmitでカウント0から作り直されるため、リセットと同じ結果になる。
func (rl *RateLimiter) cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, w := range rl.windows {
		w.mu.Lock()
		if !now.Before(w.end) {
			w.evicted = true
			delete(rl.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	rl.recorder.SetActiveWindows(len(rl.windows))

	return removed
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはウィンドウがリセットされるまでの秒数（切り上げ、最小1）を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
}
