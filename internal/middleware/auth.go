// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/metrics"
	"github.com/hitoshi/gatekeeper/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに解決済みIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// AuthPolicy はルートごとの認証要求レベル。
type AuthPolicy int

const (
	// PolicyRequired は有効なトークンがなければ401で拒否する。
	PolicyRequired AuthPolicy = iota
	// PolicyOptional は検証に失敗しても匿名として処理を続行する。
	PolicyOptional
)

// String はログ出力用の名前を返す。
func (p AuthPolicy) String() string {
	if p == PolicyOptional {
		return "optional"
	}
	return "required"
}

// TokenVerifier はトークン検証のインターフェース。
// auth.TokenServiceの部分集合として定義する。
type TokenVerifier interface {
	Verify(token string, now time.Time) (model.ClaimSet, error)
}

// AuthFailureRecorder は認証失敗を記録するインターフェース。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// IdentityResolver はAuthorizationヘッダーのBearerトークンから呼び出し元を解決する。
type IdentityResolver struct {
	verifier TokenVerifier
	recorder AuthFailureRecorder
	now      func() time.Time
}

// NewIdentityResolver はIdentityResolverを生成する。recorderがnilの場合は記録しない。
func NewIdentityResolver(verifier TokenVerifier, recorder AuthFailureRecorder) *IdentityResolver {
	if recorder == nil {
		recorder = metrics.NopCollector{}
	}
	return &IdentityResolver{
		verifier: verifier,
		recorder: recorder,
		now:      time.Now,
	}
}

// Resolve はリクエストからIdentityを解決する。
// PolicyRequiredでは検証失敗時にエラーを返し、PolicyOptionalでは常に匿名Identityで成功する。
// 返すエラーは失敗理由を保持するが、クライアントへの応答には使わないこと。
func (ir *IdentityResolver) Resolve(r *http.Request, policy AuthPolicy) (model.Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		if policy == PolicyOptional {
			return model.Anonymous(), nil
		}
		return model.Anonymous(), auth.ErrMissingToken
	}

	claims, err := ir.verifier.Verify(token, ir.now())
	if err != nil {
		if policy == PolicyOptional {
			return model.Anonymous(), nil
		}
		return model.Anonymous(), err
	}

	return model.IdentityFromClaims(claims), nil
}

// Middleware は指定したポリシーでIdentityを解決し、コンテキストに注入するミドルウェアを返す。
// PolicyRequiredで解決できない場合は理由に関わらず同一の401レスポンスを返し、後続を呼ばない。
func (ir *IdentityResolver) Middleware(policy AuthPolicy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := ir.Resolve(r, policy)
			if err != nil {
				reason := auth.Reason(err)
				ir.recorder.RecordAuthFailure(reason)
				slog.WarnContext(r.Context(), "authentication failed",
					slog.String("reason", reason),
					slog.String("policy", policy.String()),
					slog.String("path", r.URL.Path),
				)
				WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole は認証済みかつ指定ロールの呼び出し元のみ通すミドルウェアを返す。
// IdentityResolverのPolicyRequiredの後に配置する。
func RequireRole(role model.Role, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.NopCollector{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if !identity.Authenticated {
				recorder.RecordAuthFailure(auth.Reason(auth.ErrMissingToken))
				WriteUnauthorized(w)
				return
			}
			if identity.Role != role {
				recorder.RecordAuthFailure(auth.Reason(auth.ErrForbidden))
				slog.WarnContext(r.Context(), "role check failed",
					slog.String("identity", identity.Identity),
					slog.String("required_role", string(role)),
				)
				WriteForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// IdentityResolverを通過していない場合は匿名Identityを返す。
func IdentityFromContext(ctx context.Context) model.Identity {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok {
		return model.Anonymous()
	}
	return identity
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// アクセスログ用のリクエスト情報がある場合はそちらにも識別子を記録する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	if info := requestInfoFromContext(ctx); info != nil && identity.Authenticated {
		info.setIdentity(identity.Identity)
	}
	return context.WithValue(ctx, identityContextKey, identity)
}
