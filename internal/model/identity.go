package model

import "time"

// Role はトークンのクレームに含まれる権限ロール。
type Role string

const (
	// RoleAdmin は全リソースの更新・削除が可能な管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は自身が所有するリソースのみ更新・削除できる一般ロール。
	RoleUser Role = "user"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ClaimSet はトークンに格納される識別情報と有効期間。
type ClaimSet struct {
	Identity  string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity はリクエストごとに解決される呼び出し元の識別情報。
// ロールは必ず検証済みトークンのClaimSetから導出し、ヘッダーやボディからは取らない。
type Identity struct {
	Identity      string
	Role          Role
	Authenticated bool
}

// Anonymous は未認証の呼び出し元を表すIdentityを返す。
func Anonymous() Identity {
	return Identity{}
}

// IdentityFromClaims は検証済みClaimSetから認証済みIdentityを生成する。
func IdentityFromClaims(c ClaimSet) Identity {
	return Identity{
		Identity:      c.Identity,
		Role:          c.Role,
		Authenticated: true,
	}
}

// IsAdmin は認証済みの管理者かどうかを返す。
func (i Identity) IsAdmin() bool {
	return i.Authenticated && i.Role == RoleAdmin
}
