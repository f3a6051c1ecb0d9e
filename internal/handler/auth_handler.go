// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/middleware"
)

// LoginServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type LoginServiceInterface interface {
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
}

// LoginRecorder はログイン結果を記録するインターフェース。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// AuthHandler はログインと呼び出し元情報のHTTPハンドラー。
type AuthHandler struct {
	service  LoginServiceInterface
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service LoginServiceInterface, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		recorder: recorder,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// meResponse は呼び出し元の識別情報のレスポンス。
type meResponse struct {
	Identity      string `json:"identity,omitempty"`
	Role          string `json:"role,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// Login はユーザー名とパスワードを照合してトークンを発行する。
// 照合に失敗した場合は理由に関わらず同一の401を返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	// 空の資格情報も照合失敗と同じ401にし、ログイン経路の失敗形を1つに保つ
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		h.recorder.RecordLogin(false)
		middleware.WriteUnauthorized(w)
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.recorder.RecordLogin(false)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			middleware.WriteUnauthorized(w)
			return
		}
		handleServiceError(w, r, "credential", err)
		return
	}
	h.recorder.RecordLogin(true)

	writeData(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		Identity:  result.Claims.Identity,
		Role:      string(result.Claims.Role),
		ExpiresAt: result.Claims.ExpiresAt.UTC(),
	})
}

// Me は解決済みの呼び出し元情報を返す。未認証の場合はauthenticated=falseを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	writeData(w, http.StatusOK, meResponse{
		Identity:      identity.Identity,
		Role:          string(identity.Role),
		Authenticated: identity.Authenticated,
	})
}
