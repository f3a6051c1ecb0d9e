package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength はクライアント指定のリクエストIDを採用する最大長。
const maxRequestIDLength = 128

var requestInfoContextKey = contextKey("request_info")

// requestInfo はアクセスログに出力するリクエスト単位の情報。
// 内側のミドルウェアで解決した値を外側のロギングミドルウェアへ渡すために使う。
type requestInfo struct {
	requestID string

	mu       sync.Mutex
	identity string
}

func (ri *requestInfo) setIdentity(identity string) {
	ri.mu.Lock()
	ri.identity = identity
	ri.mu.Unlock()
}

func (ri *requestInfo) getIdentity() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.identity
}

func requestInfoFromContext(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoContextKey).(*requestInfo)
	return info
}

// NewRequestIDMiddleware はリクエストIDを採番し、レスポンスヘッダーとコンテキストに設定するミドルウェアを返す。
// クライアントが妥当なX-Request-IDを送った場合はそれを引き継ぐ。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !validRequestID(requestID) {
				requestID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), requestInfoContextKey, &requestInfo{requestID: requestID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext はコンテキストからリクエストIDを取得する。未設定の場合は空文字を返す。
func RequestIDFromContext(ctx context.Context) string {
	if info := requestInfoFromContext(ctx); info != nil {
		return info.requestID
	}
	return ""
}

// validRequestID はログに安全に出力できる印字可能ASCIIのみかを判定する。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
