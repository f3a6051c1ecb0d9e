package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// MinSigningKeyLength はHS256署名鍵の最小バイト数。
const MinSigningKeyLength = 32

// DefaultTokenIssuer はトークンのissクレームの既定値。
const DefaultTokenIssuer = "gatekeeper"

// TokenConfig はトークンサービスの設定。
type TokenConfig struct {
	SigningKey []byte        // プロセス全体で共有する署名鍵。起動時に1回だけ読み込む
	TTL        time.Duration // 発行から失効までの期間
	Issuer     string        // 空の場合はDefaultTokenIssuer
}

// tokenClaims はJWTに格納するクレーム。
// identityはsub、発行・失効時刻はiat/expに格納する。
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService は署名付きトークンの発行と検証を行う。
// 状態を持たず、署名鍵を読むだけなので同期は不要。
// 失効前のトークンを無効化する仕組み（ログアウト・ブラックリスト）は持たない。
type TokenService struct {
	key    []byte
	ttl    time.Duration
	issuer string
}

// NewTokenService はTokenServiceを生成する。
// 署名鍵がMinSigningKeyLength未満、またはTTLが0以下の場合はエラーを返す。
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", cfg.TTL)
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultTokenIssuer
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &TokenService{
		key:    key,
		ttl:    cfg.TTL,
		issuer: issuer,
	}, nil
}

// TTL はトークンの有効期間を返す。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue はidentityとroleを含むトークンを発行する。
// issuedAt=now、expiresAt=now+TTL。JWTの精度に合わせて秒単位に切り捨て、
// 返すClaimSetもトークンに格納した値と一致させる。
func (s *TokenService) Issue(username string, role model.Role, now time.Time) (string, model.ClaimSet, error) {
	if username == "" {
		return "", model.ClaimSet{}, errors.New("identity must not be empty")
	}
	if !role.Valid() {
		return "", model.ClaimSet{}, fmt.Errorf("unknown role %q", role)
	}

	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl).Truncate(time.Second)
	tokenID := uuid.NewString()

	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", model.ClaimSet{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, model.ClaimSet{
		Identity:  username,
		Role:      role,
		TokenID:   tokenID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify はトークンの署名と有効期限を検証し、ClaimSetを返す。
// 解析できない場合はErrMalformed、署名不一致・HS256以外の署名方式はErrBadSignature、
// now >= expiresAtの場合はErrExpiredをラップして返す。
// 署名は有効期限より先に検証するため、偽造された期限切れトークンはErrBadSignatureになる。
func (s *TokenService) Verify(tokenString string, now time.Time) (model.ClaimSet, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &tokenClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return model.ClaimSet{}, classifyTokenError(err)
	}

	role := model.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() || claims.IssuedAt == nil {
		return model.ClaimSet{}, fmt.Errorf("%w: missing identity, role or issued-at claim", ErrMalformed)
	}

	return model.ClaimSet{
		Identity:  claims.Subject,
		Role:      role,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// classifyTokenError はjwtライブラリのエラーを認証エラー種別に変換する。
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
