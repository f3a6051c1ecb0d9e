// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError はクライアントに返す統一エラーフォーマットを表す。
// レスポンスでは {"error": {"kind", "message", "field"}} として出力される。
type APIError struct {
	Kind    string // エラー種別: unauthorized, forbidden, not_found など
	Message string // クライアント向けメッセージ（内部情報を含めない）
	Field   string // バリデーションエラーの対象フィールド（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// 定義済みエラー種別
const (
	ErrKindUnauthorized      = "unauthorized"
	ErrKindForbidden         = "forbidden"
	ErrKindRateLimitExceeded = "rate_limit_exceeded"
	ErrKindNotFound          = "not_found"
	ErrKindValidation        = "validation_error"
	ErrKindInvalidRequest    = "invalid_request"
	ErrKindMethodNotAllowed  = "method_not_allowed"
	ErrKindInternal          = "internal_error"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// トークン欠落・改ざん・期限切れ・ログイン失敗のいずれでも同一の内容を返し、
// どの検証で失敗したかをクライアントに推測させない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:    ErrKindUnauthorized,
		Message: "authentication failed",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Kind:    ErrKindForbidden,
		Message: "access denied",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Kind:    ErrKindRateLimitExceeded,
		Message: "too many requests, retry after the window resets",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
// resourceにはリクエストで指定された種別のみを渡すこと。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:    ErrKindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError は入力値バリデーションエラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Kind:    ErrKindValidation,
		Message: reason,
		Field:   field,
	}
}

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Kind:    ErrKindInvalidRequest,
		Message: "request body could not be parsed",
	}
}

// NewMethodNotAllowedError は未対応メソッドエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Kind:    ErrKindMethodNotAllowed,
		Message: "method not allowed",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Kind:    ErrKindInternal,
		Message: "internal server error",
	}
}
