// Package model はドメインモデルを定義する。
package model

import "time"

// User はユーザーリソースを表す。
// 認証用のクレデンシャルとは独立した、APIで管理されるエンティティ。
type User struct {
	ID        int64
	Name      string
	Email     string
	Age       int
	Role      Role
	Owner     string // 作成者のidentity。更新不可
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityID はストアが採番したIDを返す。
func (u User) EntityID() int64 { return u.ID }

// WithID はIDを設定したコピーを返す。
func (u User) WithID(id int64) User {
	u.ID = id
	return u
}

// OwnerIdentity は作成者のidentityを返す。
func (u User) OwnerIdentity() string { return u.Owner }
