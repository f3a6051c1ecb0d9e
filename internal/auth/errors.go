package auth

import "errors"

// 認証・認可の失敗種別。
// いずれもクライアントには同一のレスポンスとして返し、種別はログとメトリクスにのみ残す。
var (
	// ErrMissingToken はAuthorizationヘッダーにBearerトークンがない場合のエラー。
	ErrMissingToken = errors.New("missing bearer token")
	// ErrMalformed はトークンを期待する構造として解析できない場合のエラー。
	ErrMalformed = errors.New("malformed token")
	// ErrBadSignature は署名が一致しない、または許可されていない署名方式の場合のエラー。
	ErrBadSignature = errors.New("invalid token signature")
	// ErrExpired は現在時刻が有効期限以降の場合のエラー。
	ErrExpired = errors.New("token expired")
	// ErrForbidden は認証済みだが操作の権限がない場合のエラー。
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials はユーザー名またはパスワードが一致しない場合のエラー。
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Reason はエラーをログ・メトリクス用の短いラベルに変換する。
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "unknown"
	}
}
