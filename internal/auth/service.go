// Package auth はログイン、トークンの発行・検証、認可判定を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// Authenticator はクレデンシャル照合のインターフェース。
type Authenticator interface {
	Authenticate(username, secret string) (model.Role, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(username string, role model.Role, now time.Time) (string, model.ClaimSet, error)
}

// LoginResult はログイン成功時に返すトークンとクレーム。
type LoginResult struct {
	Token  string
	Claims model.ClaimSet
}

// Service はログイン処理のビジネスロジックを提供する。
type Service struct {
	credentials Authenticator
	tokens      TokenIssuer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(credentials Authenticator, tokens TokenIssuer) *Service {
	return &Service{
		credentials: credentials,
		tokens:      tokens,
		now:         time.Now,
	}
}

// Login はユーザー名とパスワードを照合し、成功した場合はトークンを発行する。
// 照合に失敗した場合は理由を区別せずErrInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	role, err := s.credentials.Authenticate(username, password)
	if err != nil {
		slog.WarnContext(ctx, "login failed",
			slog.String("reason", Reason(err)),
		)
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(username, role, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.InfoContext(ctx, "login succeeded",
		slog.String("identity", claims.Identity),
		slog.String("role", string(claims.Role)),
		slog.String("token_id", claims.TokenID),
	)

	return &LoginResult{Token: token, Claims: claims}, nil
}
